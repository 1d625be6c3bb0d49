// Package engine sequences calls into a FlowGuard protocol.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// All mutations go through one goroutine (Run) or one mutex (Execute).
// This gives:
//   - A total order of calls, numbered by the logical Clock
//   - A reproducible log: replaying it yields the same state and events
//   - No interleaving inside a call, so the ledger's checks hold
//
// Call Processing Flow:
//  1. Submit enqueues a call from any goroutine
//  2. Run dequeues calls one at a time
//  3. Execute stamps seq, a UUIDv7 tx id and ledger time
//  4. protocol.Apply runs the call against its undo journal
//  5. The outcome (applied or rejected) is written to the call log; if the
//     write fails the call is reverted and the seq is not consumed
//  6. The receipt is returned to the submitter
//
// Recovery:
// Recover re-applies the stored log to a fresh protocol and checks every
// outcome against what was stored. Any difference is a REPLAY_DIVERGENCE.
//
// Ledger time comes from a TimeSource (wall clock in production, manual in
// tests) and is clamped so it never moves backwards between calls.
package engine
