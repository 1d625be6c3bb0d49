package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// ReadCalls returns every call with seq > afterSeq, in seq order, with
// events attached. Returns an empty slice (not nil) when there are none.
func (s *Store) ReadCalls(ctx context.Context, afterSeq int64) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tx_id, component, method, caller, args, time, status, error_code, events_digest
		FROM calls
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []CallRecord{}
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}

	events, err := s.ReadEvents(ctx, EventFilter{AfterSeq: afterSeq})
	if err != nil {
		return nil, err
	}
	bySeq := make(map[int64][]ledger.Event, len(calls))
	for _, ev := range events {
		bySeq[ev.Seq] = append(bySeq[ev.Seq], ev)
	}
	for i := range calls {
		calls[i].Events = bySeq[calls[i].Seq]
	}
	return calls, nil
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	Component string
	Name      string
	AfterSeq  int64
	Limit     int
}

// ReadEvents returns the events matching f ordered by (seq, idx).
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]ledger.Event, error) {
	var (
		where = []string{"e.call_seq > ?"}
		args  = []any{f.AfterSeq}
	)
	if f.Component != "" {
		where = append(where, "e.component = ?")
		args = append(args, f.Component)
	}
	if f.Name != "" {
		where = append(where, "e.name = ?")
		args = append(args, f.Name)
	}
	query := `
		SELECT e.call_seq, c.tx_id, e.idx, e.component, e.name, e.fields, e.indexed, c.time
		FROM events e
		JOIN calls c ON c.seq = e.call_seq
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.call_seq ASC, e.idx ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ledger.Event{}
	for rows.Next() {
		var (
			ev              ledger.Event
			fields, indexed string
		)
		if err := rows.Scan(&ev.Seq, &ev.TxID, &ev.Index, &ev.Component, &ev.Name, &fields, &indexed, &ev.Time); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Fields, err = unmarshalObject(fields); err != nil {
			return nil, fmt.Errorf("event %d/%d fields: %w", ev.Seq, ev.Index, err)
		}
		if ev.Indexed, err = unmarshalNames(indexed); err != nil {
			return nil, fmt.Errorf("event %d/%d: %w", ev.Seq, ev.Index, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanCall(rows *sql.Rows) (CallRecord, error) {
	var (
		rec                  CallRecord
		caller, args, digest string
	)
	err := rows.Scan(&rec.Seq, &rec.TxID, &rec.Component, &rec.Method, &caller, &args,
		&rec.Time, &rec.Status, &rec.ErrorCode, &digest)
	if err != nil {
		return CallRecord{}, fmt.Errorf("scan call: %w", err)
	}
	if rec.Caller, err = types.ParseAddress(caller); err != nil {
		return CallRecord{}, fmt.Errorf("call %d caller: %w", rec.Seq, err)
	}
	if rec.Args, err = unmarshalObject(args); err != nil {
		return CallRecord{}, fmt.Errorf("call %d args: %w", rec.Seq, err)
	}
	if rec.EventsDigest, err = types.ParseHash(digest); err != nil {
		return CallRecord{}, fmt.Errorf("call %d digest: %w", rec.Seq, err)
	}
	return rec, nil
}
