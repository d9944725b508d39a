// Package store provides SQLite-backed durable storage for the offline
// mutation queue.
//
// The store holds three tables:
//   - mutation_queue: one row per queued write, drained in ascending id order
//   - sync_leases: drain leases shared by every process using the file
//   - offline_cache: cached server collections for offline reads
//
// # Ordering
//
// Queue listings always use ORDER BY id ASC. The id column is
// AUTOINCREMENT so an id is never handed out twice, even after the row
// with the highest id has been deleted.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
