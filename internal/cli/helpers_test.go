package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// decode parses a JSON envelope and unmarshals its data into v (if non-nil).
func decode(t *testing.T, out string, v any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v), out)
	}
	return env
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "queue.db")
}

type seenRequest struct {
	Method string
	Path   string
	Body   string
	Key    string
}

// backend is an httptest server that records requests. handle picks the
// reply; nil answers 200 "{}".
type backend struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newBackend(t *testing.T, handle func(r seenRequest) (int, string)) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := seenRequest{Method: r.Method, Path: r.URL.Path, Body: string(body), Key: r.Header.Get("Idempotency-Key")}
		if r.Method != http.MethodHead {
			b.mu.Lock()
			b.seen = append(b.seen, req)
			b.mu.Unlock()
		}

		status, reply := http.StatusOK, "{}"
		if handle != nil {
			status, reply = handle(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) requests() []seenRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]seenRequest, len(b.seen))
	copy(out, b.seen)
	return out
}
