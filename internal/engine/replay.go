package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
)

// Recover rebuilds in-memory state by re-applying every stored call after
// the current seq, in order, with its stored tx id and time. Each outcome
// (status, error code, event digest) must match the log; the first
// mismatch stops recovery with a divergence error, after which the
// protocol holds a partial replay and must be discarded.
//
// Recover must run before Run and before any Execute.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.log == nil {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	calls, err := e.log.ReadCalls(ctx, e.clock.Current())
	if err != nil {
		return 0, fmt.Errorf("recover: %w", err)
	}

	replayed := 0
	for _, stored := range calls {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		if want := e.clock.Peek(); stored.Seq != want {
			return replayed, &RuntimeError{
				Code:    ErrCodeSeqGap,
				Message: fmt.Sprintf("expected seq %d", want),
				Seq:     stored.Seq,
				Call:    stored.Name(),
			}
		}

		call := protocol.Call{
			Component: stored.Component,
			Method:    stored.Method,
			Caller:    stored.Caller,
			Args:      stored.Args,
		}
		meta := protocol.Meta{Seq: stored.Seq, TxID: stored.TxID, Time: stored.Time}
		rec, err := e.proto.Apply(call, meta, nil)
		if err != nil {
			return replayed, fmt.Errorf("recover seq %d: %w", stored.Seq, err)
		}
		if err := compareOutcome(stored, rec); err != nil {
			slog.Error("replay diverged", "seq", stored.Seq, "call", stored.Name(), "error", err)
			return replayed, err
		}

		e.clock.Next()
		if stored.Time > e.lastTime {
			e.lastTime = stored.Time
		}
		replayed++
	}

	slog.Info("log recovered", "calls", replayed, "seq", e.clock.Current())
	return replayed, nil
}

func compareOutcome(stored store.CallRecord, rec protocol.Receipt) error {
	if got := rec.Status(); got != stored.Status {
		return NewDivergenceError(stored.Seq, stored.Name(), "status", stored.Status, got)
	}
	if got := rec.Code(); got != stored.ErrorCode {
		return NewDivergenceError(stored.Seq, stored.Name(), "error code", quote(stored.ErrorCode), quote(got))
	}
	if got := rec.Digest(); got != stored.EventsDigest {
		return NewDivergenceError(stored.Seq, stored.Name(), "events digest", stored.EventsDigest.String(), got.String())
	}
	return nil
}

func quote(s string) string { return fmt.Sprintf("%q", s) }
