package ledger

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/types"
)

// Event records one state transition. Fields carries the full payload;
// Indexed lists the field names an observer can filter on, so entity
// history can be rebuilt from events alone.
type Event struct {
	Seq       int64        `json:"seq"`
	TxID      string       `json:"tx_id"`
	Index     int          `json:"index"`
	Component string       `json:"component"`
	Name      string       `json:"name"`
	Fields    canon.Object `json:"fields"`
	Indexed   []string     `json:"indexed,omitempty"`
	Time      int64        `json:"time"`
}

// Value returns the canonical form of the event used for digests. The
// transaction id is excluded so replays under fresh ids still compare.
func (e Event) Value() canon.Object {
	indexed := make(canon.Array, len(e.Indexed))
	for i, name := range e.Indexed {
		indexed[i] = canon.String(name)
	}
	return canon.Object{
		"seq":       canon.Int(e.Seq),
		"index":     canon.Int(int64(e.Index)),
		"component": canon.String(e.Component),
		"name":      canon.String(e.Name),
		"fields":    e.Fields,
		"indexed":   indexed,
		"time":      canon.Int(e.Time),
	}
}

// Digest hashes an ordered event list. Replay compares digests to detect
// divergence between the stored log and the current logic.
func Digest(events []Event) types.Hash {
	arr := make(canon.Array, len(events))
	for i, e := range events {
		arr[i] = e.Value()
	}
	return canon.HashValue(canon.DomainEvents, arr)
}
