package store

import (
	"context"
	"fmt"
)

// Summary describes the stored log for recovery and the replay command.
type Summary struct {
	Calls    int
	Applied  int
	Rejected int
	Events   int
	LastSeq  int64
	// Gaps counts missing sequence numbers below LastSeq. A healthy log
	// has none because the engine persists every call it numbers.
	Gaps int64
}

// Summarize computes a Summary in two aggregate queries.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'applied' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(seq), 0)
		FROM calls
	`).Scan(&sum.Calls, &sum.Applied, &sum.Rejected, &sum.LastSeq)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize calls: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&sum.Events); err != nil {
		return Summary{}, fmt.Errorf("summarize events: %w", err)
	}

	sum.Gaps = sum.LastSeq - int64(sum.Calls)
	return sum, nil
}
