package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/upb/payment-control-plane/app"
	"github.com/upb/payment-control-plane/config"
	"github.com/upb/payment-control-plane/internal/observability"
)

// standalone marks commands that run without the pipeline dependencies.
const standalone = "standalone"

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	policyPath string
	logLevel   string
	pretty     bool

	deps *app.Dependencies
}

// Execute runs the payctl command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the payctl command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "payctl",
		Short:         "Drive the payment authorization pipeline from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[standalone] == "true" {
				return nil
			}
			return c.open(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&c.policyPath, "policy", "", "policy document path (default from POLICY_PATH)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.pretty, "pretty", true, "indent JSON output")

	root.AddCommand(
		authorizeCmd(c),
		settleCmd(c),
		speculateCmd(c),
		complianceCmd(c),
		replayCmd(c),
		ledgerCmd(c),
		reportCmd(c, "history", "List recent authorization decisions"),
		reportCmd(c, "routes", "List recent routing decisions"),
		deadLettersCmd(c),
		providersCmd(c),
		policyCmd(c),
	)
	return root
}

// open loads configuration and wires the pipeline.
func (c *cli) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}
	if c.policyPath != "" {
		cfg.Pipeline.PolicySource = config.PolicySourceFile
		cfg.Pipeline.PolicyPath = c.policyPath
	}

	logger, err := observability.NewLogger(c.logLevel, "console")
	if err != nil {
		return err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.deps = deps
	return nil
}

// run adapts fn into a RunE that releases the pipeline once fn returns.
func (c *cli) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if c.deps == nil {
				return
			}
			if cerr := c.deps.Close(context.Background()); cerr != nil && err == nil {
				err = cerr
			}
			c.deps = nil
		}()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, cmd, args)
	}
}

func (c *cli) print(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if c.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
