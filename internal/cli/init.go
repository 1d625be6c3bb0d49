package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Admin    string
	ChainID  uint64
	Database string
	Asset    string
	Decimals uint8
	Rate     string
	Genesis  int64
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new config file",
		Long: `Write a new flowguard.yaml (or the path given by --config).

The admin address receives every administrative role at deployment.
Genesis defaults to the current time and fixes the point the yield pool
accrues from, so it must not change once calls have been logged.

Example:
  flowguard init --admin 0x00000000000000000000000000000000000000aa
  flowguard init --admin 0x...aa --db ./ledger.db --chain-id 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Admin, "admin", "", "admin address (required)")
	_ = cmd.MarkFlagRequired("admin")
	cmd.Flags().Uint64Var(&opts.ChainID, "chain-id", def.ChainID, "chain id bound into signed messages")
	cmd.Flags().StringVar(&opts.Database, "db", def.Database, "path to SQLite database")
	cmd.Flags().StringVar(&opts.Asset, "asset", def.Asset.Symbol, "asset symbol")
	cmd.Flags().Uint8Var(&opts.Decimals, "decimals", def.Asset.Decimals, "asset decimals")
	cmd.Flags().StringVar(&opts.Rate, "liquidity-rate", def.Pool.LiquidityRateRay, "pool supply rate in ray (1e27 = 100%/yr)")
	cmd.Flags().Int64Var(&opts.Genesis, "genesis", 0, "ledger start time in unix seconds (default now)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg := config.Default()
	cfg.Admin = opts.Admin
	cfg.ChainID = opts.ChainID
	cfg.Database = opts.Database
	cfg.Asset.Symbol = opts.Asset
	cfg.Asset.Decimals = opts.Decimals
	cfg.Pool.LiquidityRateRay = opts.Rate
	cfg.Genesis = opts.Genesis
	if cfg.Genesis == 0 {
		cfg.Genesis = time.Now().Unix()
	}

	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if _, err := cfg.Options(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if err := config.Write(opts.Config, cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to write config", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"path":     opts.Config,
			"database": cfg.Database,
			"admin":    cfg.Admin,
			"chain_id": cfg.ChainID,
			"genesis":  cfg.Genesis,
		})
	}
	fmt.Fprintf(formatter.Writer, "Wrote %s (database %s, chain %d)\n", opts.Config, cfg.Database, cfg.ChainID)
	return nil
}
