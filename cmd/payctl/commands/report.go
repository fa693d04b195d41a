package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/routing"
)

func ledgerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect ledger accounts and journal entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "accounts",
		Short: "List ledger accounts and balances",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			accounts, err := c.deps.Ledger.Accounts(ctx)
			if err != nil {
				return err
			}
			if accounts == nil {
				accounts = []*models.Account{}
			}
			return c.print(cmd.OutOrStdout(), accounts)
		}),
	}, &cobra.Command{
		Use:   "account <id>",
		Short: "Show one ledger account",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			account, err := c.deps.Ledger.Account(ctx, args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), account)
		}),
	}, &cobra.Command{
		Use:   "journal <correlation-id>",
		Short: "List the journal entries posted for one request",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			entries, err := c.deps.Ledger.Journal(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no journal entries for %s", args[0])
			}
			return c.print(cmd.OutOrStdout(), entries)
		}),
	})
	return cmd
}

// reportCmd lists the history or routing decision log.
func reportCmd(c *cli, name, short string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			var (
				out interface{}
				err error
			)
			switch name {
			case "history":
				out, err = c.deps.Repos.History.List(ctx, limit)
			default:
				out, err = c.deps.Routing.Decisions(ctx, limit)
			}
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to list")
	return cmd
}

func deadLettersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "List events that exhausted recovery",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			letters, err := c.deps.Authorization.DeadLetters(ctx)
			if err != nil {
				return err
			}
			if letters == nil {
				letters = []models.DeadLetter{}
			}
			return c.print(cmd.OutOrStdout(), letters)
		}),
	}
}

// ProviderStatus is one probed payment provider.
type ProviderStatus struct {
	Name      string                `json:"name"`
	Status    models.ProviderStatus `json:"status"`
	LatencyMS *int64                `json:"latency_ms,omitempty"`
	Risk      float64               `json:"risk"`
	Score     float64               `json:"score"`
}

func providersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Probe every registered payment provider and score it",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			registry := c.deps.ProviderRegistry
			statuses := make([]ProviderStatus, 0, registry.GetProviderCount())
			for _, name := range registry.ListProviders() {
				p, err := registry.GetProvider(name)
				if err != nil {
					return err
				}

				health := routing.HealthCheck(ctx, p)
				status := ProviderStatus{Name: name, Status: health.Status, Risk: p.Risk()}
				in := routing.ScoreInput{Risk: p.Risk(), Available: health.Status == models.ProviderUp, Latency: routing.UnavailableLatency}
				if health.Latency != nil {
					ms := health.Latency.Milliseconds()
					status.LatencyMS = &ms
					in.Latency = *health.Latency
				}
				status.Score = routing.ScoreProvider(in)
				statuses = append(statuses, status)
			}
			return c.print(cmd.OutOrStdout(), statuses)
		}),
	}
}
