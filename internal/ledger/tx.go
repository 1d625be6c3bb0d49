package ledger

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/types"
)

// Tx is the context of one sequenced call.
type Tx struct {
	ID      string
	Seq     int64
	Caller  types.Address
	Time    int64
	ChainID uint64

	undo   []func()
	events []Event
}

// NewTx creates a call context.
func NewTx(id string, seq int64, caller types.Address, time int64, chainID uint64) *Tx {
	return &Tx{
		ID:      id,
		Seq:     seq,
		Caller:  caller,
		Time:    time,
		ChainID: chainID,
	}
}

// OnRevert registers fn to run if the call fails. Closures run in reverse
// registration order.
func (tx *Tx) OnRevert(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// Emit buffers an event. Indexed names the fields an observer can filter on.
func (tx *Tx) Emit(component, name string, fields canon.Object, indexed ...string) {
	tx.events = append(tx.events, Event{
		Seq:       tx.Seq,
		TxID:      tx.ID,
		Index:     len(tx.events),
		Component: component,
		Name:      name,
		Fields:    fields,
		Indexed:   indexed,
		Time:      tx.Time,
	})
}

// Events returns the events emitted so far.
func (tx *Tx) Events() []Event {
	out := make([]Event, len(tx.events))
	copy(out, tx.events)
	return out
}

// Revert undoes every journaled mutation and discards buffered events.
func (tx *Tx) Revert() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.events = nil
}

// Journaled reports how many undo closures are registered.
func (tx *Tx) Journaled() int {
	return len(tx.undo)
}
