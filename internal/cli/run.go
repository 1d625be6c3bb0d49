package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/engine"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/types"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// IDGenerator overrides the transaction id source (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
	// TimeSource overrides the ledger clock (for testing).
	TimeSource engine.TimeSource
}

// CallLine is one line of run input.
type CallLine struct {
	Call string        `json:"call"`
	As   types.Address `json:"as"`
	Args canon.Object  `json:"args"`
}

// RunSummary is printed when the input is exhausted.
type RunSummary struct {
	Calls     int `json:"calls"`
	Applied   int `json:"applied"`
	Rejected  int `json:"rejected"`
	Malformed int `json:"malformed"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and execute calls from stdin",
		Long: `Start the single-writer engine and execute newline-delimited JSON
calls read from stdin, one receipt per call, until EOF or Ctrl-C.

Each line has the form:
  {"call":"payroll.executePayroll","as":"0x...b1","args":{...}}

Malformed lines are reported and skipped; the command then exits with
code 1 after the remaining input has run.

Example:
  flowguard run < calls.ndjson
  flowguard run --format json < calls.ndjson > receipts.ndjson`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var engineOpts []engine.Option
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	if opts.TimeSource != nil {
		engineOpts = append(engineOpts, engine.WithTimeSource(opts.TimeSource))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	s, err := openSession(ctx, opts.RootOptions, engineOpts...)
	if err != nil {
		return err
	}
	defer s.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- s.engine.Run(ctx) }()

	summary, err := submitLines(ctx, s.engine, cmd, formatter)
	s.engine.Stop()
	if rerr := <-runErr; rerr != nil && !errors.Is(rerr, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", rerr)
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		if err := json.NewEncoder(formatter.Writer).Encode(CLIResponse{Status: "ok", Data: summary}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "%d calls: %d applied, %d rejected, %d malformed\n",
			summary.Calls, summary.Applied, summary.Rejected, summary.Malformed)
	}

	if summary.Malformed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d malformed input line(s)", summary.Malformed))
	}
	return nil
}

// submitLines feeds stdin to the engine one call at a time and prints each
// receipt as it arrives.
func submitLines(ctx context.Context, eng *engine.Engine, cmd *cobra.Command, formatter *OutputFormatter) (RunSummary, error) {
	var summary RunSummary

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		call, err := decodeCallLine(line)
		if err != nil {
			summary.Malformed++
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("line %d: %v", lineNo, err), nil)
			continue
		}

		rec, err := eng.Submit(ctx, call)
		if err != nil {
			if ctx.Err() != nil || engine.IsStopped(err) {
				return summary, nil
			}
			return summary, WrapExitError(ExitCommandError, fmt.Sprintf("line %d", lineNo), err)
		}

		summary.Calls++
		if rec.Status() == protocol.StatusApplied {
			summary.Applied++
		} else {
			summary.Rejected++
		}
		if err := writeReceipt(formatter, rec); err != nil {
			return summary, err
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, WrapExitError(ExitCommandError, "failed to read input", err)
	}
	return summary, nil
}

func decodeCallLine(line string) (protocol.Call, error) {
	var in CallLine
	if err := json.Unmarshal([]byte(line), &in); err != nil {
		return protocol.Call{}, err
	}
	return protocol.NewCall(in.Call, in.As, in.Args)
}
