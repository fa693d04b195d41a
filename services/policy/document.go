package policy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/upb/payment-control-plane/internal/expr"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services"
	"github.com/upb/payment-control-plane/utils"
)

// Variables a rule expression may reference.
var (
	PatternVars = []string{"amount", "country", "currency"}
	LedgerVars  = []string{"amount", "currency", "source_account", "destination_account"}
)

// Compiled is a validated policy with its rule expressions compiled. It is
// handed to engines by pointer and never modified after Compile returns.
type Compiled struct {
	models.Policy

	Patterns    []*expr.Program
	LedgerRules []*expr.Program
}

// Parse decodes and compiles a policy document. Unknown fields, schema
// violations and bad expressions are configuration errors.
func Parse(data []byte) (*Compiled, error) {
	var doc models.Policy
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, services.WrapConfiguration("malformed policy document", err)
	}
	return Compile(doc)
}

// Compile validates a decoded policy and compiles its rules.
func Compile(doc models.Policy) (*Compiled, error) {
	if err := utils.ValidateStruct(doc); err != nil {
		return nil, services.ErrInvalidPolicy.Wrap(err).
			WithDetail("fields", utils.GetValidationFields(err))
	}

	if err := checkPostingBalance(doc.Ledger.Posting); err != nil {
		return nil, err
	}

	patterns, err := compileRules(doc.Compliance.Patterns, PatternVars)
	if err != nil {
		return nil, err
	}
	ledgerRules, err := compileRules(doc.Ledger.Validate, LedgerVars)
	if err != nil {
		return nil, err
	}

	return &Compiled{
		Policy:      doc,
		Patterns:    patterns,
		LedgerRules: ledgerRules,
	}, nil
}

// Every template posts the transaction amount, so a posting balances only
// when debits and credits pair up.
func checkPostingBalance(templates []models.PostingTemplate) error {
	balance := 0
	for _, t := range templates {
		switch t.Type {
		case models.EntryTypeDebit:
			balance--
		case models.EntryTypeCredit:
			balance++
		}
	}
	if balance != 0 {
		return services.NewDomainError(services.ErrorTypeConfiguration,
			"posting templates do not balance", nil).WithDetail("imbalance", balance)
	}
	return nil
}

func compileRules(rules []string, vars []string) ([]*expr.Program, error) {
	programs := make([]*expr.Program, 0, len(rules))
	for _, rule := range rules {
		p, err := expr.Compile(rule, vars...)
		if err != nil {
			return nil, services.ErrInvalidRule.Wrap(fmt.Errorf("%q: %w", rule, err)).
				WithDetail("rule", rule)
		}
		programs = append(programs, p)
	}
	return programs, nil
}
