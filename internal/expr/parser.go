package expr

import (
	"fmt"
	"sort"
)

type node interface {
	eval(env Env) (Value, error)
}

type literal struct{ v Value }

type variable struct{ name string }

type unary struct {
	op      string
	operand node
}

type binary struct {
	op          string
	left, right node
}

// Program is a compiled rule expression. It is immutable and safe for concurrent use.
type Program struct {
	source string
	root   node
	vars   []string
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string { return p.source }

// Vars returns the sorted variable names the expression references.
func (p *Program) Vars() []string {
	out := make([]string, len(p.vars))
	copy(out, p.vars)
	return out
}

// Compile parses src. When allowed is non-empty every referenced variable must be in it.
func Compile(src string, allowed ...string) (*Program, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, vars: map[string]struct{}{}}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok, tok.pos)
	}

	vars := make([]string, 0, len(p.vars))
	for name := range p.vars {
		vars = append(vars, name)
	}
	sort.Strings(vars)

	if len(allowed) > 0 {
		permitted := make(map[string]struct{}, len(allowed))
		for _, a := range allowed {
			permitted[a] = struct{}{}
		}
		for _, v := range vars {
			if _, ok := permitted[v]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnbound, v)
			}
		}
	}

	return &Program{source: src, root: root, vars: vars}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string, allowed ...string) *Program {
	p, err := Compile(src, allowed...)
	if err != nil {
		panic(err)
	}
	return p
}

type parser struct {
	tokens []token
	pos    int
	vars   map[string]struct{}
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// accept consumes the next token when it is one of ops (operators or keyword aliases).
func (p *parser) accept(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp && tok.kind != tokIdent {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.next()
			return canonical(op), true
		}
	}
	return "", false
}

func canonical(op string) string {
	switch op {
	case "and":
		return "&&"
	case "or":
		return "||"
	case "not":
		return "!"
	case "===":
		return "=="
	case "!==":
		return "!="
	}
	return op
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("||", "or")
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("&&", "and")
		if !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseNot() (node, error) {
	if op, ok := p.accept("!", "not"); ok {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unary{op: op, operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.accept("===", "!==", "==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, chained := p.accept("===", "!==", "==", "!=", "<=", ">=", "<", ">"); chained {
		return nil, fmt.Errorf("%w: chained comparison at %d", ErrSyntax, p.tokens[p.pos-1].pos)
	}
	return binary{op: op, left: left, right: right}, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.accept("-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return literal{v: Number(tok.num)}, nil
	case tokString:
		return literal{v: String(tok.text)}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return literal{v: Bool(true)}, nil
		case "false":
			return literal{v: Bool(false)}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok, tok.pos)
		}
		p.vars[tok.text] = struct{}{}
		return variable{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected \")\" at %d, got %s", ErrSyntax, closing.pos, closing)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok, tok.pos)
	}
}
