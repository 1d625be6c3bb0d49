package harness

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// TraceEntry is one executed step: the call as submitted and its receipt.
type TraceEntry struct {
	Step   string
	Seq    int64
	TxID   string
	Time   int64
	Call   string
	Caller types.Address
	Args   canon.Object
	Status string
	Code   string
	// Message is the rejection message, for failure output only.
	Message string
	Result  canon.Value
	Events  []ledger.Event
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// Trace contains every setup and flow step in execution order.
	Trace []TraceEntry

	// Errors contains the failure messages. Empty if Pass is true.
	Errors []string

	resolver *Resolver
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
