// Package store records delivered output values in SQLite.
//
// Every graph loaded by kabuki opens a session; each cycle's deliveries are
// appended under that session and can be read back for inspection
// (kabuki trace) or compared across runs.
//
// # Ordering
//
//   - All ordering uses seq INTEGER from a logical clock, never timestamps
//   - Queries order by seq ASC, id ASC so results are identical across reads
//   - Values are stored as canonical JSON so traces diff byte for byte
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while the loop writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: deliveries must belong to a session
package store
