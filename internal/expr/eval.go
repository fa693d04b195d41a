package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrSyntax reports a malformed expression.
	ErrSyntax = errors.New("expr: syntax error")
	// ErrUnbound reports a reference to a variable outside the binding set.
	ErrUnbound = errors.New("expr: unbound variable")
	// ErrType reports an operator applied to operands of the wrong kind.
	ErrType = errors.New("expr: type mismatch")
	// ErrDivideByZero reports division or modulo by zero.
	ErrDivideByZero = errors.New("expr: division by zero")
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	}
	return "unknown"
}

// Value is a number, string or boolean.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric value and whether v is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string value and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Truth returns the boolean value and whether v is a boolean.
func (v Value) Truth() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	default:
		return strconv.FormatBool(v.b)
	}
}

// Env binds variable names to values.
type Env map[string]Value

// Eval evaluates the program against env.
func (p *Program) Eval(env Env) (Value, error) {
	v, err := p.root.eval(env)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", p.source, err)
	}
	return v, nil
}

// EvalBool evaluates the program and requires a boolean result.
func (p *Program) EvalBool(env Env) (bool, error) {
	v, err := p.Eval(env)
	if err != nil {
		return false, err
	}
	b, ok := v.Truth()
	if !ok {
		return false, fmt.Errorf("%s: %w: result is %s, want bool", p.source, ErrType, v.kind)
	}
	return b, nil
}

func (n literal) eval(Env) (Value, error) { return n.v, nil }

func (n variable) eval(env Env) (Value, error) {
	v, ok := env[n.name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnbound, n.name)
	}
	return v, nil
}

func (n unary) eval(env Env) (Value, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case "-":
		f, ok := v.Float()
		if !ok {
			return Value{}, fmt.Errorf("%w: cannot negate %s", ErrType, v.kind)
		}
		return Number(-f), nil
	case "!":
		b, ok := v.Truth()
		if !ok {
			return Value{}, fmt.Errorf("%w: cannot negate %s", ErrType, v.kind)
		}
		return Bool(!b), nil
	}
	return Value{}, fmt.Errorf("%w: unknown unary operator %q", ErrSyntax, n.op)
}

func (n binary) eval(env Env) (Value, error) {
	left, err := n.left.eval(env)
	if err != nil {
		return Value{}, err
	}

	// && and || short-circuit
	if n.op == "&&" || n.op == "||" {
		lb, ok := left.Truth()
		if !ok {
			return Value{}, fmt.Errorf("%w: %s operand of %s", ErrType, left.kind, n.op)
		}
		if (n.op == "&&" && !lb) || (n.op == "||" && lb) {
			return Bool(lb), nil
		}
		right, err := n.right.eval(env)
		if err != nil {
			return Value{}, err
		}
		rb, ok := right.Truth()
		if !ok {
			return Value{}, fmt.Errorf("%w: %s operand of %s", ErrType, right.kind, n.op)
		}
		return Bool(rb), nil
	}

	right, err := n.right.eval(env)
	if err != nil {
		return Value{}, err
	}

	switch n.op {
	case "==", "!=":
		if left.kind != right.kind {
			return Value{}, fmt.Errorf("%w: cannot compare %s with %s", ErrType, left.kind, right.kind)
		}
		eq := left == right
		if n.op == "!=" {
			eq = !eq
		}
		return Bool(eq), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	case "+", "-", "*", "/", "%":
		return arithmetic(n.op, left, right)
	}
	return Value{}, fmt.Errorf("%w: unknown operator %q", ErrSyntax, n.op)
}

func compare(op string, left, right Value) (Value, error) {
	var c int
	switch {
	case left.kind == KindNumber && right.kind == KindNumber:
		switch {
		case left.num < right.num:
			c = -1
		case left.num > right.num:
			c = 1
		}
	case left.kind == KindString && right.kind == KindString:
		switch {
		case left.str < right.str:
			c = -1
		case left.str > right.str:
			c = 1
		}
	default:
		return Value{}, fmt.Errorf("%w: cannot order %s and %s", ErrType, left.kind, right.kind)
	}

	switch op {
	case "<":
		return Bool(c < 0), nil
	case "<=":
		return Bool(c <= 0), nil
	case ">":
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func arithmetic(op string, left, right Value) (Value, error) {
	l, lok := left.Float()
	r, rok := right.Float()
	if !lok || !rok {
		return Value{}, fmt.Errorf("%w: %s %s %s", ErrType, left.kind, op, right.kind)
	}
	switch op {
	case "+":
		return Number(l + r), nil
	case "-":
		return Number(l - r), nil
	case "*":
		return Number(l * r), nil
	case "/":
		if r == 0 {
			return Value{}, ErrDivideByZero
		}
		return Number(l / r), nil
	default:
		if r == 0 {
			return Value{}, ErrDivideByZero
		}
		return Number(math.Mod(l, r)), nil
	}
}
