package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/config"
	"github.com/roach88/flowguard/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Component string
	Name      string
	After     int64
	Limit     int
	Calls     bool
}

// CallView is the printable form of a logged call.
type CallView struct {
	Seq    int64          `json:"seq"`
	TxID   string         `json:"tx_id"`
	Time   int64          `json:"time"`
	Call   string         `json:"call"`
	Caller string         `json:"caller"`
	Args   map[string]any `json:"args"`
	Status string         `json:"status"`
	Code   string         `json:"code,omitempty"`
	Events int            `json:"events"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show logged events or calls",
		Long: `Show the events in the call log, oldest first, optionally filtered
by component and event name. With --calls, show the calls themselves.

Examples:
  flowguard log
  flowguard log --component payroll --name PayrollExecuted
  flowguard log --calls --after 100 --limit 20
  flowguard log --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Component, "component", "", "filter events by component")
	cmd.Flags().StringVar(&opts.Name, "name", "", "filter events by name")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entries (0 = all)")
	cmd.Flags().BoolVar(&opts.Calls, "calls", false, "show calls instead of events")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Calls {
		return logCalls(ctx, opts, st, formatter)
	}
	return logEvents(ctx, opts, st, formatter)
}

func logEvents(ctx context.Context, opts *LogOptions, st *store.Store, formatter *OutputFormatter) error {
	events, err := st.ReadEvents(ctx, store.EventFilter{
		Component: opts.Component,
		Name:      opts.Name,
		AfterSeq:  opts.After,
		Limit:     opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if opts.Format == "json" {
		views := make([]EventView, len(events))
		for i, ev := range events {
			views[i] = newEventView(ev)
		}
		return formatter.Success(views)
	}

	if len(events) == 0 {
		fmt.Fprintln(formatter.Writer, "No events found.")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(formatter.Writer, "%s", dimColor.Sprintf("[%d.%d] ", ev.Seq, ev.Index))
		writeEventLine(formatter.Writer, ev)
	}
	return nil
}

func logCalls(ctx context.Context, opts *LogOptions, st *store.Store, formatter *OutputFormatter) error {
	calls, err := st.ReadCalls(ctx, opts.After)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read calls", err)
	}
	if opts.Limit > 0 && len(calls) > opts.Limit {
		calls = calls[:opts.Limit]
	}

	views := make([]CallView, 0, len(calls))
	for _, c := range calls {
		if opts.Component != "" && c.Component != opts.Component {
			continue
		}
		args, _ := canon.ToGo(c.Args).(map[string]any)
		views = append(views, CallView{
			Seq:    c.Seq,
			TxID:   c.TxID,
			Time:   c.Time,
			Call:   c.Name(),
			Caller: c.Caller.String(),
			Args:   args,
			Status: c.Status,
			Code:   c.ErrorCode,
			Events: len(c.Events),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(formatter.Writer, "No calls found.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(formatter.Writer, "[%d] %s %s", v.Seq, v.Call, statusText(v.Status))
		if v.Code != "" {
			fmt.Fprintf(formatter.Writer, " %s", v.Code)
		}
		fmt.Fprintf(formatter.Writer, " %s\n", dimColor.Sprintf("by %s at %d", v.Caller, v.Time))
	}
	return nil
}
