package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/protocol"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	As   string
	Args string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <component.method>",
		Short: "Execute one call against the ledger",
		Long: `Execute one call against the ledger and append it to the call log.

The ledger state is first rebuilt by replaying the log. A rejected call is
still logged and exits with code 1.

Examples:
  flowguard invoke asset.mint --as 0x...aa --args '{"to":"0x...b1","amount":"1000"}'
  flowguard invoke payroll.executePayroll --as 0x...b1 \
    --args '{"recipients":["0x...a1"],"amounts":["100"]}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeCall(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "caller address (required)")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "call arguments as JSON")

	return cmd
}

func invokeCall(opts *InvokeOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	call, err := parseCall(name, opts.As, opts.Args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	formatter.VerboseLog("Replayed log to seq %d", s.engine.Seq())

	rec, err := s.engine.Execute(ctx, call)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to execute call", err)
	}
	if err := writeReceipt(formatter, rec); err != nil {
		return err
	}
	if rec.Status() != protocol.StatusApplied {
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", call.Name(), rec.Code()))
	}
	return nil
}
