package statusws

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

func setupEngine(t *testing.T) *engine.Engine {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return engine.New(s, testutil.NewStubTransport(), engine.WithLogger(slog.New(slog.DiscardHandler)))
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHandler_InitialStatusThenChanges(t *testing.T) {
	eng := setupEngine(t)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h := New(eng, WithLogger(slog.New(slog.DiscardHandler)), WithNow(func() time.Time { return fixed }))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, MessageTypeStatus, msg.Type)
	assert.Equal(t, engine.StatusIdle, msg.Status)
	assert.True(t, fixed.Equal(msg.Timestamp))

	eng.SetConnected(ctx, false)

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, engine.StatusOffline, msg.Status)
}

func TestHandler_UnsubscribesOnDisconnect(t *testing.T) {
	eng := setupEngine(t)
	h := New(eng, WithLogger(slog.New(slog.DiscardHandler)))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, 1, h.ClientCount())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Engine keeps working with no listeners
	eng.SetConnected(ctx, false)
	assert.Equal(t, engine.StatusOffline, eng.Status())
}

func TestMailbox_DropsOldest(t *testing.T) {
	box := newMailbox(2)

	box.push(engine.StatusSyncing)
	box.push(engine.StatusIdle)
	box.push(engine.StatusOffline)

	assert.Equal(t, engine.StatusIdle, <-box.ch)
	assert.Equal(t, engine.StatusOffline, <-box.ch)
	assert.Empty(t, box.ch)
}
