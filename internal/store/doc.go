// Package store provides the SQLite-backed sensor event journal.
//
// The journal is append-only. Every event the bus publishes is recorded
// with its per-(entity, sensor) sequence number, and entities are recorded
// with their display names so traces can be read back by name.
//
// # Ordering
//
//   - journal_seq (AUTOINCREMENT) is the global append order
//   - seq is the per-(entity, sensor) publish order from the attribute store
//   - Queries order by journal_seq ASC, which agrees with seq for any one
//     (entity, sensor) because the bus records while the slot lock is held
//
// # Idempotency
//
// Event IDs are content-addressed (ir.EventID over entity, sensor, seq), and
// inserts use ON CONFLICT DO NOTHING. Recording the same event twice is a
// no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values are stored as RFC 8785 canonical JSON.
package store
