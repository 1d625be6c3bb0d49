package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/config"
	"github.com/roach88/flowguard/internal/engine"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
)

// ReplayResult holds the replay result.
type ReplayResult struct {
	Calls         int    `json:"calls"`
	Applied       int    `json:"applied"`
	Rejected      int    `json:"rejected"`
	Events        int    `json:"events"`
	LastSeq       int64  `json:"last_seq"`
	Replayed      int    `json:"replayed"`
	Deterministic bool   `json:"deterministic"`
	DivergedAt    int64  `json:"diverged_at,omitempty"`
	Call          string `json:"call,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the call log and verify determinism",
		Long: `Replay every logged call into a fresh deployment and verify that each
one reproduces its stored status, error code and event digest.

Nothing is written to the log.

Exit codes:
  0 - Every call replayed to its stored outcome
  1 - Replay diverged (or the log has a sequence gap)
  2 - Command error (config or database not found, etc.)

Examples:
  flowguard replay
  flowguard replay --config ./prod.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	deploy, err := cfg.Options()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sum, err := st.Summarize(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize log", err)
	}

	proto, err := protocol.New(deploy)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to deploy protocol", err)
	}
	replayed, err := engine.New(proto, st).Recover(ctx)

	result := ReplayResult{
		Calls:         sum.Calls,
		Applied:       sum.Applied,
		Rejected:      sum.Rejected,
		Events:        sum.Events,
		LastSeq:       sum.LastSeq,
		Replayed:      replayed,
		Deterministic: true,
	}

	var rerr *engine.RuntimeError
	switch {
	case err == nil:
	case engine.IsDivergence(err) && errors.As(err, &rerr):
		result.Deterministic = false
		result.DivergedAt = rerr.Seq
		result.Call = rerr.Call
		result.Reason = rerr.Message
	default:
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    string(engine.ErrCodeReplayDivergence),
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Calls == 0 {
		fmt.Fprintln(w, "No calls found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d call(s), %d event(s)\n", result.Calls, result.Events)
	if verbose {
		fmt.Fprintf(w, "  Applied: %d\n", result.Applied)
		fmt.Fprintf(w, "  Rejected: %d\n", result.Rejected)
		fmt.Fprintf(w, "  Last seq: %d\n", result.LastSeq)
	}
	fmt.Fprintf(w, "  Replayed: %d\n", result.Replayed)
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintf(w, "%s All calls verified deterministic\n", appliedColor.Sprint("✓"))
		return nil
	}

	fmt.Fprintf(w, "%s Determinism verification failed\n", rejectedColor.Sprint("✗"))
	fmt.Fprintf(w, "  seq %d (%s): %s\n", result.DivergedAt, result.Call, result.Reason)
	return NewExitError(ExitFailure, "determinism verification failed")
}
