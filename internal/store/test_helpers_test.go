package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/fieldsync/internal/mutation"
)

// createTestStore opens a fresh file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestMutation builds a pending record with minimal required fields.
func createTestMutation(url string, method mutation.Method, body string) mutation.Record {
	rec := mutation.Record{
		URL:            url,
		Method:         method,
		Timestamp:      1700000000000,
		Status:         mutation.StatusPending,
		IdempotencyKey: "key-" + url,
	}
	if body != "" {
		rec.Body = json.RawMessage(body)
	}
	return rec
}
