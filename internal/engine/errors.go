package engine

import (
	"errors"
	"fmt"
)

// EnqueueError reports a write intent rejected before it was persisted.
type EnqueueError struct {
	// Code identifies the error category.
	Code EnqueueErrorCode

	// Message is a human-readable description.
	Message string
}

// EnqueueErrorCode categorizes enqueue rejections.
type EnqueueErrorCode string

const (
	// ErrCodeInvalidMethod indicates a verb outside POST, PUT, DELETE, PATCH.
	ErrCodeInvalidMethod EnqueueErrorCode = "INVALID_METHOD"

	// ErrCodeEmptyURL indicates a blank target url.
	ErrCodeEmptyURL EnqueueErrorCode = "EMPTY_URL"

	// ErrCodeInvalidBody indicates a payload that is not valid JSON.
	ErrCodeInvalidBody EnqueueErrorCode = "INVALID_BODY"
)

// Error implements the error interface.
func (e *EnqueueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsEnqueueError returns true if err is an EnqueueError.
// Uses errors.As to handle wrapped errors.
func IsEnqueueError(err error) bool {
	var ee *EnqueueError
	return errors.As(err, &ee)
}

// DispatchError reports a completed HTTP exchange with a non-2xx status.
//
// Every DispatchError is retryable: the record stays pending whether the
// server answered 4xx, 5xx or 408.
type DispatchError struct {
	MutationID int64
	StatusCode int
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch mutation %d: server responded %d", e.MutationID, e.StatusCode)
}

// IsDispatchError returns true if err is a DispatchError.
// Uses errors.As to handle wrapped errors.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
