package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/protocol"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected call, failed scenario, diverged replay
	ExitCommandError = 2 // Command error (bad config, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
	TxID   string      `json:"tx_id,omitempty"` // transaction id of an executed call
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // ledger code ("UNAUTHORIZED") or "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

var (
	appliedColor  = color.New(color.FgGreen, color.Bold)
	rejectedColor = color.New(color.FgRed, color.Bold)
	dimColor      = color.New(color.Faint)
)

// statusText colors a receipt status for terminal output. Colors are
// dropped automatically when stdout is not a terminal.
func statusText(status string) string {
	switch status {
	case protocol.StatusApplied:
		return appliedColor.Sprint(status)
	case protocol.StatusRejected:
		return rejectedColor.Sprint(status)
	}
	return status
}

// ReceiptView is the printable form of a receipt.
type ReceiptView struct {
	Seq     int64       `json:"seq"`
	TxID    string      `json:"tx_id"`
	Time    int64       `json:"time"`
	Call    string      `json:"call"`
	Caller  string      `json:"caller"`
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  any         `json:"result,omitempty"`
	Events  []EventView `json:"events"`
}

// EventView is the printable form of an event.
type EventView struct {
	Seq       int64          `json:"seq"`
	TxID      string         `json:"tx_id,omitempty"`
	Time      int64          `json:"time"`
	Component string         `json:"component"`
	Name      string         `json:"name"`
	Fields    map[string]any `json:"fields"`
}

func newReceiptView(r protocol.Receipt) ReceiptView {
	v := ReceiptView{
		Seq:    r.Seq,
		TxID:   r.TxID,
		Time:   r.Time,
		Call:   r.Call.Name(),
		Caller: r.Call.Caller.String(),
		Status: r.Status(),
		Code:   r.Code(),
		Events: make([]EventView, len(r.Events)),
	}
	if r.Err != nil {
		v.Message = r.Err.Error()
	}
	if r.Result != nil {
		v.Result = canon.ToGo(r.Result)
	}
	for i, ev := range r.Events {
		v.Events[i] = newEventView(ev)
	}
	return v
}

func newEventView(ev ledger.Event) EventView {
	fields, _ := canon.ToGo(ev.Fields).(map[string]any)
	return EventView{
		Seq:       ev.Seq,
		TxID:      ev.TxID,
		Time:      ev.Time,
		Component: ev.Component,
		Name:      ev.Name,
		Fields:    fields,
	}
}

// writeReceipt prints a receipt in the configured format.
func writeReceipt(f *OutputFormatter, r protocol.Receipt) error {
	view := newReceiptView(r)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   view,
			TxID:   view.TxID,
		})
	}

	fmt.Fprintf(f.Writer, "[%d] %s %s", view.Seq, view.Call, statusText(view.Status))
	if view.Code != "" {
		fmt.Fprintf(f.Writer, " %s: %s", view.Code, view.Message)
	}
	fmt.Fprintln(f.Writer)
	fmt.Fprintf(f.Writer, "  %s\n", dimColor.Sprintf("tx %s at %d by %s", view.TxID, view.Time, view.Caller))
	if r.Result != nil {
		fmt.Fprintf(f.Writer, "  result: %s\n", compactValue(r.Result))
	}
	for _, ev := range r.Events {
		writeEventLine(f.Writer, ev)
	}
	return nil
}

func writeEventLine(w io.Writer, ev ledger.Event) {
	fmt.Fprintf(w, "  %s.%s %s\n", ev.Component, ev.Name, compactValue(ev.Fields))
}

func compactValue(v canon.Value) string {
	data, err := canon.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// newFormatter builds the formatter for a command.
func newFormatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: errW,
		Verbose:   opts.Verbose,
	}
}
