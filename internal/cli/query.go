package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Args string
	List bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [component.method]",
		Short: "Run a read-only method",
		Long: `Run a read-only method against the ledger state rebuilt from the
call log. Nothing is appended to the log.

Examples:
  flowguard query payroll.getTotalDisbursed
  flowguard query asset.balanceOf --args '{"owner":"0x...a1"}'
  flowguard query --list`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return listMethods(opts, cmd)
			}
			if len(args) != 1 {
				return NewExitError(ExitCommandError, "query needs a method name or --list")
			}
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "query arguments as JSON")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list every callable and read-only method")

	return cmd
}

func runQuery(opts *QueryOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	args, err := parseArgs(opts.Args)
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

	value, err := s.engine.Query(name, args)
	if err != nil {
		code := string(ledger.CodeOf(err))
		if code == "" {
			code = ErrCodeGeneric
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, fmt.Sprintf("query %s failed", name), err)
	}

	if opts.Format == "json" {
		return formatter.Success(canon.ToGo(value))
	}
	data, err := json.MarshalIndent(canon.ToGo(value), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}

func listMethods(opts *QueryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	methods, queries := s.proto.Methods(), s.proto.Queries()
	if opts.Format == "json" {
		return formatter.Success(map[string][]string{"methods": methods, "queries": queries})
	}
	fmt.Fprintln(formatter.Writer, "Methods:")
	for _, m := range methods {
		fmt.Fprintf(formatter.Writer, "  %s\n", m)
	}
	fmt.Fprintln(formatter.Writer, "Queries:")
	for _, q := range queries {
		fmt.Fprintf(formatter.Writer, "  %s\n", q)
	}
	return nil
}
