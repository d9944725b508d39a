// Package mutation defines the queued write record shared by the stores,
// the sync engine and the outer surfaces.
//
// This package contains type definitions only. It imports nothing internal,
// so every other package can depend on it without cycles.
//
// Key design constraints:
//   - Record.ID is assigned by the store and never reused
//   - Records drain in ascending ID order; Timestamp is provenance only
//   - URL and Body change only through dependency resolution
//   - All JSON tags use snake_case
package mutation
