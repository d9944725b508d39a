package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_OK(t *testing.T) {
	for _, code := range []int{200, 201, 204, 299} {
		assert.True(t, Response{StatusCode: code}.OK(), "status %d", code)
	}
	for _, code := range []int{0, 199, 300, 304, 400, 408, 409, 500, 503} {
		assert.False(t, Response{StatusCode: code}.OK(), "status %d", code)
	}
}

func TestTransportFunc(t *testing.T) {
	var got Request
	tr := TransportFunc(func(_ context.Context, req Request) (Response, error) {
		got = req
		return Response{StatusCode: 201}, nil
	})

	resp, err := tr.Dispatch(context.Background(), Request{Method: "POST", URL: "/x"})
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "/x", got.URL)
}

func TestErrorHelpers(t *testing.T) {
	enq := &EnqueueError{Code: ErrCodeEmptyURL, Message: "url is required"}
	assert.Equal(t, "EMPTY_URL: url is required", enq.Error())
	assert.True(t, IsEnqueueError(fmt.Errorf("wrap: %w", enq)))
	assert.False(t, IsDispatchError(enq))

	disp := &DispatchError{MutationID: 4, StatusCode: 503}
	assert.Equal(t, "dispatch mutation 4: server responded 503", disp.Error())
	assert.True(t, IsDispatchError(fmt.Errorf("wrap: %w", disp)))
	assert.False(t, IsEnqueueError(disp))
}
