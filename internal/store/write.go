package store

import (
	"context"
	"fmt"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// CallRecord is one row of the call log together with its events.
type CallRecord struct {
	Seq          int64
	TxID         string
	Component    string
	Method       string
	Caller       types.Address
	Args         canon.Object
	Time         int64
	Status       string
	ErrorCode    string
	EventsDigest types.Hash
	Events       []ledger.Event
}

// Name returns "component.method".
func (r CallRecord) Name() string { return r.Component + "." + r.Method }

// WriteCall appends a call and its events in one transaction. A second
// write of the same seq or tx id fails; the log is never rewritten.
func (s *Store) WriteCall(ctx context.Context, rec CallRecord) (err error) {
	args, err := marshalObject(rec.Args)
	if err != nil {
		return fmt.Errorf("write call %d: marshal args: %w", rec.Seq, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write call %d: begin: %w", rec.Seq, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calls
		(seq, tx_id, component, method, caller, args, time, status, error_code, events_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Seq,
		rec.TxID,
		rec.Component,
		rec.Method,
		rec.Caller.String(),
		args,
		rec.Time,
		rec.Status,
		rec.ErrorCode,
		rec.EventsDigest.String(),
	)
	if err != nil {
		return fmt.Errorf("write call %d: %w", rec.Seq, err)
	}

	for _, ev := range rec.Events {
		fields, ferr := marshalObject(ev.Fields)
		if ferr != nil {
			return fmt.Errorf("write call %d: event %d fields: %w", rec.Seq, ev.Index, ferr)
		}
		indexed, ierr := marshalNames(ev.Indexed)
		if ierr != nil {
			return fmt.Errorf("write call %d: %w", rec.Seq, ierr)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (call_seq, idx, component, name, fields, indexed)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.Seq, ev.Index, ev.Component, ev.Name, fields, indexed)
		if err != nil {
			return fmt.Errorf("write call %d: event %d: %w", rec.Seq, ev.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("write call %d: commit: %w", rec.Seq, err)
	}
	return nil
}
