// Package engine implements the offline mutation sync engine.
//
// The engine accepts write intents, persists them to a durable queue, and
// drains that queue against the backend whenever connectivity allows,
// substituting real server identifiers for client-chosen placeholders as
// they are learned.
//
// ARCHITECTURE:
//
// Single Drain Pass:
// At most one drain pass runs per engine at a time. The draining flag is the
// only in-process exclusion; an optional store lease extends it across
// processes sharing one database file.
//
// Drain Flow:
//  1. Snapshot every pending record, ascending id
//  2. For each entry: stop if offline, cancelled, or the lease was lost
//  3. Re-read the record by id (a previous iteration may have rewritten it)
//  4. Dispatch; on success delete it, then resolve its temp id if it had one
//  5. On failure log and leave the record pending for a later pass
//
// One network call is in flight at a time. Records are never reordered:
// a parent-creating write must reach the server before its children.
//
// Connectivity is an explicit input (SetConnected). An offline to online
// edge starts a drain.
package engine
