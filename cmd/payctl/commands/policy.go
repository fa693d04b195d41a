package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/policy"
)

// PolicySummary describes a compiled policy document.
type PolicySummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Providers   []string `json:"providers"`
	Patterns    int      `json:"patterns"`
	LedgerRules int      `json:"ledger_rules"`
	Fallback    string   `json:"fallback_chain"`
}

func summarize(p *policy.Compiled) PolicySummary {
	return PolicySummary{
		Name:        p.Name,
		Version:     p.Version,
		Providers:   p.Routing.Providers(),
		Patterns:    len(p.Patterns),
		LedgerRules: len(p.LedgerRules),
		Fallback:    p.Chain.FallbackChain,
	}
}

func policyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Validate, import and list policy documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "validate <file>",
		Short:       "Parse and compile a policy document without storing it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{standalone: "true"},
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			compiled, err := policy.Parse(data)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), summarize(compiled))
		}),
	}, &cobra.Command{
		Use:   "import <file>",
		Short: "Store a policy document as the newest version of its name",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			record, err := c.deps.Policies.Import(ctx, data)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), record)
		}),
	}, &cobra.Command{
		Use:   "list",
		Short: "List stored policy documents",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			records, err := c.deps.Policies.List(ctx)
			if err != nil {
				return err
			}
			if records == nil {
				records = []*models.PolicyRecord{}
			}
			return c.print(cmd.OutOrStdout(), records)
		}),
	})
	return cmd
}
