package testutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/engine"
)

func TestStubTransport_DefaultReply(t *testing.T) {
	stub := NewStubTransport()

	resp, err := stub.Dispatch(context.Background(), engine.Request{Method: "POST", URL: "/api/x", Header: http.Header{}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{}", string(resp.Body))
}

func TestStubTransport_ScriptConsumedInOrder(t *testing.T) {
	boom := errors.New("connection reset")
	stub := NewStubTransport(
		Reply{Status: 201, Body: `{"id":500}`},
		Reply{Err: boom},
	)
	stub.Script(Reply{Status: 500})

	ctx := context.Background()
	req := engine.Request{Method: "POST", URL: "/a"}

	resp, err := stub.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.JSONEq(t, `{"id":500}`, string(resp.Body))

	_, err = stub.Dispatch(ctx, req)
	assert.ErrorIs(t, err, boom)

	resp, err = stub.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	resp, err = stub.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode, "exhausted script falls back to default")
}

func TestStubTransport_RecordsCalls(t *testing.T) {
	stub := NewStubTransport()
	header := http.Header{}
	header.Set("Idempotency-Key", "k1")

	_, _ = stub.Dispatch(context.Background(), engine.Request{
		Method: "PUT",
		URL:    "/api/items/3",
		Header: header,
		Body:   []byte(`{"a":1}`),
	})
	header.Set("Idempotency-Key", "mutated")

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "PUT", calls[0].Method)
	assert.Equal(t, "/api/items/3", calls[0].URL)
	assert.Equal(t, `{"a":1}`, calls[0].Body)
	assert.Equal(t, "k1", calls[0].Header.Get("Idempotency-Key"), "header captured by value")
	assert.Equal(t, 1, stub.CallCount())
}

func TestStubTransport_HookAndReset(t *testing.T) {
	stub := NewStubTransport()
	var hooked []string
	stub.OnDispatch(func(_ context.Context, c Call) {
		hooked = append(hooked, c.URL)
	})

	_, _ = stub.Dispatch(context.Background(), engine.Request{URL: "/one"})
	stub.Reset()
	_, _ = stub.Dispatch(context.Background(), engine.Request{URL: "/two"})

	assert.Equal(t, []string{"/one", "/two"}, hooked)
	require.Len(t, stub.Calls(), 1)
	assert.Equal(t, "/two", stub.Calls()[0].URL)
}
