// Package store provides SQLite-backed durable storage for the FlowGuard
// call log.
//
// The log is append-only:
//   - calls: every submitted call with its outcome (status, error code,
//     digest of the emitted events)
//   - events: the events of applied calls, in emission order
//
// Ordering always uses seq, the engine's logical clock, never wall time.
// Reads return rows ORDER BY seq ASC so replay is deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events reference their call
//
// Args and event fields are stored as canonical JSON (see internal/canon),
// so a stored call decodes to the exact value that was applied.
package store
