package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/upb/payment-control-plane/handlers"
	"github.com/upb/payment-control-plane/models"
	"github.com/upb/payment-control-plane/services/speculative"
)

// txFlags collects a transaction from flags or from a JSON document.
type txFlags struct {
	file        string
	amount      string
	currency    string
	country     string
	mcc         string
	from        string
	to          string
	countryRisk float64
	risk        float64
}

func (f *txFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.file, "file", "f", "", "read the transaction from a JSON file (- for stdin)")
	fs.StringVar(&f.amount, "amount", "", "transaction amount")
	fs.StringVar(&f.currency, "currency", "USD", "ISO 4217 currency code")
	fs.StringVar(&f.country, "country", "", "ISO 3166 country code")
	fs.StringVar(&f.mcc, "mcc", "", "merchant category code")
	fs.StringVar(&f.from, "from", "", "source account")
	fs.StringVar(&f.to, "to", "", "destination account")
	fs.Float64Var(&f.countryRisk, "country-risk", 0, "country risk 0-100")
	fs.Float64Var(&f.risk, "risk", 0, "routing risk override 0-100")
}

func (f *txFlags) transaction(cmd *cobra.Command) (models.TransactionRequest, error) {
	var tx models.TransactionRequest
	if f.file != "" {
		data, err := readInput(cmd, f.file)
		if err != nil {
			return tx, err
		}
		if err := json.Unmarshal(data, &tx); err != nil {
			return tx, fmt.Errorf("decode transaction: %w", err)
		}
		return tx, nil
	}

	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return tx, fmt.Errorf("invalid --amount %q: %w", f.amount, err)
	}
	tx = models.TransactionRequest{
		Amount:             amount,
		Currency:           f.currency,
		Country:            f.country,
		MCC:                f.mcc,
		SourceAccount:      f.from,
		DestinationAccount: f.to,
		CountryRisk:        f.countryRisk,
	}
	if cmd.Flags().Changed("risk") {
		tx = tx.WithRisk(f.risk)
	}
	return tx, nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func authorizeCmd(c *cli) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Run a transaction through the full authorization pipeline",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			tx, err := flags.transaction(cmd)
			if err != nil {
				return err
			}
			outcome, err := c.deps.Authorization.Authorize(ctx, tx)
			if outcome != nil {
				if perr := c.print(cmd.OutOrStdout(), outcome); perr != nil {
					return perr
				}
			}
			return err
		}),
	}
	flags.register(cmd)
	return cmd
}

func settleCmd(c *cli) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a transaction on the cheapest eligible chain",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			tx, err := flags.transaction(cmd)
			if err != nil {
				return err
			}
			tx = tx.EnsureCorrelation()
			records, err := c.deps.Settlement.Settle(ctx, tx)
			if perr := c.print(cmd.OutOrStdout(), handlers.SettleResponse{CorrelationID: tx.CorrelationID, Records: records}); perr != nil {
				return perr
			}
			return err
		}),
	}
	flags.register(cmd)
	return cmd
}

func speculateCmd(c *cli) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "speculate",
		Short: "Fuse a decision and rank it across the speculative paths",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			tx, err := flags.transaction(cmd)
			if err != nil {
				return err
			}
			fused, err := c.deps.Fusion.Execute(ctx, tx.EnsureCorrelation())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), handlers.SpeculateResponse{
				Fusion:      fused,
				Speculative: speculative.Evaluate(fused.Context, c.deps.SpeculativePaths),
			})
		}),
	}
	flags.register(cmd)
	return cmd
}

func complianceCmd(c *cli) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Screen a transaction against the velocity, anomaly and pattern rules",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			tx, err := flags.transaction(cmd)
			if err != nil {
				return err
			}
			result, err := c.deps.Compliance.Evaluate(ctx, tx)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), result)
		}),
	}
	flags.register(cmd)
	return cmd
}

// ReplaySummary reports a batch authorization followed by a replay.
type ReplaySummary struct {
	Authorized int      `json:"authorized"`
	Rejected   []string `json:"rejected,omitempty"`
	Replayed   int      `json:"replayed"`
	Processed  int      `json:"processed"`
	Failed     int      `json:"failed"`
}

func replayCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Authorize a batch of transactions, then replay every recorded request",
		RunE: c.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var batch []models.TransactionRequest
			if err := json.Unmarshal(data, &batch); err != nil {
				return fmt.Errorf("decode batch: %w", err)
			}

			var summary ReplaySummary
			for _, tx := range batch {
				outcome, err := c.deps.Authorization.Authorize(ctx, tx)
				if err != nil {
					id := tx.CorrelationID
					if outcome != nil {
						id = outcome.CorrelationID
					}
					summary.Rejected = append(summary.Rejected, fmt.Sprintf("%s: %v", id, err))
					continue
				}
				summary.Authorized++
			}

			n, trace := c.deps.Authorization.Replay(ctx)
			summary.Replayed = n
			summary.Processed = len(trace.Processed)
			summary.Failed = len(trace.Failed)
			return c.print(cmd.OutOrStdout(), summary)
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON array of transactions (- for stdin)")
	return cmd
}
