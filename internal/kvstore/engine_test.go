package kvstore_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/kvstore"
	"github.com/roach88/fieldsync/internal/mutation"
	"github.com/roach88/fieldsync/internal/testutil"
)

func TestEngineOnBadger_DependencyResolution(t *testing.T) {
	ctx := context.Background()
	s, err := kvstore.OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	stub := testutil.NewStubTransport(testutil.Reply{Status: 201, Body: `{"id":500}`})
	eng := engine.New(s, stub,
		engine.WithConnected(false),
		engine.WithLease(s, "", 0),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)

	_, err = eng.Enqueue(ctx, "/api/inspections", mutation.MethodPost, json.RawMessage(`{}`), mutation.TempIDOf(-1))
	require.NoError(t, err)
	_, err = eng.Enqueue(ctx, "/api/inspections/-1/items", mutation.MethodPost, json.RawMessage(`{"inspection_id":-1}`), nil)
	require.NoError(t, err)

	eng.SetConnected(ctx, true)

	calls := stub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/api/inspections/500/items", calls[1].URL)
	assert.JSONEq(t, `{"inspection_id":500}`, calls[1].Body)

	left, err := s.ListMutations(ctx, mutation.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, engine.StatusIdle, eng.Status())
}
