// Package ledger holds the execution context shared by every component.
//
// A Tx is one sequenced call. It carries the caller, the ledger time, the
// chain id, an undo journal and a buffer of emitted events. Components
// mutate their state directly and register an undo closure for every
// mutation with OnRevert. When any step of a call fails the runtime calls
// Revert, which runs the closures in reverse order and drops the buffered
// events, so a failed call leaves no trace in any component.
//
// Every mutating operation follows the same order:
//
//  1. checks: role, pause switch, argument and state validation
//  2. effects: ledger state updates, each journaled
//  3. interactions: calls into the asset or pool primitives
//
// The package also defines the error taxonomy (Error, Kind, Code) and the
// ports components use to reach the access guard, the asset and the pool.
package ledger
