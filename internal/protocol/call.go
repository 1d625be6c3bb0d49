package protocol

import (
	"fmt"
	"strings"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Call is one request against the protocol.
type Call struct {
	Component string        `json:"component"`
	Method    string        `json:"method"`
	Caller    types.Address `json:"caller"`
	Args      canon.Object  `json:"args"`
}

// Name returns "component.method".
func (c Call) Name() string { return c.Component + "." + c.Method }

// ParseName splits "component.method". The method is the part after the
// last dot, so "access.payroll.pause" names method "pause" on component
// "access.payroll".
func ParseName(name string) (component, method string, err error) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("call name %q: want component.method", name)
	}
	return name[:i], name[i+1:], nil
}

// NewCall builds a call from a "component.method" name.
func NewCall(name string, caller types.Address, args canon.Object) (Call, error) {
	component, method, err := ParseName(name)
	if err != nil {
		return Call{}, err
	}
	if args == nil {
		args = canon.Object{}
	}
	return Call{Component: component, Method: method, Caller: caller, Args: args}, nil
}

// Meta is the sequencing context the engine assigns to a call.
type Meta struct {
	Seq  int64
	TxID string
	Time int64
}

// Status of an applied call.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

// Receipt is the outcome of one call. Err is set when the ledger rejected
// the call; a rejected call has no events and changed no state.
type Receipt struct {
	Call   Call
	Seq    int64
	TxID   string
	Time   int64
	Result canon.Value
	Events []ledger.Event
	Err    error
}

// Status returns StatusApplied or StatusRejected.
func (r Receipt) Status() string {
	if r.Err != nil {
		return StatusRejected
	}
	return StatusApplied
}

// Code returns the error code of a rejected call, or "".
func (r Receipt) Code() string {
	return string(ledger.CodeOf(r.Err))
}

// Digest hashes the receipt's events.
func (r Receipt) Digest() types.Hash {
	return ledger.Digest(r.Events)
}
