// Package store provides SQLite-backed durable storage for the codex.
//
// Three tables are kept:
//   - audit_records: the append-only audit ledger (implements audit.Ledger)
//   - fusion_sessions: terminal fusion sessions (implements fusion.Archive)
//   - validation_reports: integrity reports from hard and soft runs
//
// # Ordering
//
// Audit records are ordered by seq (the logical clock), never by wall time.
// Sessions and reports are ordered by their timestamp with id as tiebreak,
// so listings are stable across reads.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Timestamps are stored as Unix microseconds in UTC.
package store
