package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an infrastructure failure of the engine, as opposed to
// a ledger rejection (which is reported in the receipt).
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the affected sequence number, if any.
	Seq int64

	// Call is the affected call name, if any.
	Call string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts calls.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodePersistFailed indicates the call log write failed and the
	// call was reverted.
	ErrCodePersistFailed RuntimeErrorCode = "PERSIST_FAILED"

	// ErrCodeReplayDivergence indicates a stored call produced a different
	// outcome when re-applied.
	ErrCodeReplayDivergence RuntimeErrorCode = "REPLAY_DIVERGENCE"

	// ErrCodeSeqGap indicates the stored log skips a sequence number.
	ErrCodeSeqGap RuntimeErrorCode = "SEQ_GAP"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Seq != 0 && e.Call != "" {
		msg = fmt.Sprintf("%s (seq=%d, call=%s)", msg, e.Seq, e.Call)
	} else if e.Seq != 0 {
		msg = fmt.Sprintf("%s (seq=%d)", msg, e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStopped reports whether err means the engine was stopped.
func IsStopped(err error) bool { return hasCode(err, ErrCodeStopped) }

// IsPersistError reports whether err is a call log write failure.
func IsPersistError(err error) bool { return hasCode(err, ErrCodePersistFailed) }

// IsDivergence reports whether err is a replay divergence or a gap in the
// stored log.
func IsDivergence(err error) bool {
	return hasCode(err, ErrCodeReplayDivergence) || hasCode(err, ErrCodeSeqGap)
}

func newStoppedError() *RuntimeError {
	return &RuntimeError{Code: ErrCodeStopped, Message: "engine is not accepting calls"}
}

// NewDivergenceError describes a stored outcome that replay did not reproduce.
func NewDivergenceError(seq int64, call, field, stored, replayed string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReplayDivergence,
		Message: fmt.Sprintf("%s differs: stored %s, replayed %s", field, stored, replayed),
		Seq:     seq,
		Call:    call,
		Details: map[string]string{
			"field":    field,
			"stored":   stored,
			"replayed": replayed,
		},
	}
}
