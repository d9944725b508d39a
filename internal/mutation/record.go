package mutation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by stores when a mutation id does not exist.
var ErrNotFound = errors.New("mutation not found")

// Method is the HTTP verb of a queued write.
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// ValidMethods lists the supported verbs in their canonical spelling.
var ValidMethods = []Method{MethodPost, MethodPut, MethodDelete, MethodPatch}

// ParseMethod normalizes s and checks it against ValidMethods.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if m.Valid() {
		return m, nil
	}
	return "", fmt.Errorf("unsupported method %q: must be one of %v", s, ValidMethods)
}

// Valid reports whether m is one of the supported verbs.
func (m Method) Valid() bool {
	for _, v := range ValidMethods {
		if m == v {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a queued write.
//
// Only StatusPending is written or queried by the engine. StatusProcessing
// and StatusFailed are reserved for a future retry policy.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusFailed:
		return true
	}
	return false
}

// Record is one durable, queued network write.
type Record struct {
	ID             int64           `json:"id" msgpack:"id"`
	URL            string          `json:"url" msgpack:"url"`
	Method         Method          `json:"method" msgpack:"method"`
	Body           json.RawMessage `json:"body,omitempty" msgpack:"body"`
	Timestamp      int64           `json:"timestamp" msgpack:"timestamp"` // epoch milliseconds
	RetryCount     int             `json:"retry_count" msgpack:"retry_count"`
	Status         Status          `json:"status" msgpack:"status"`
	Error          string          `json:"error,omitempty" msgpack:"error"`
	TempID         *int64          `json:"temp_id,omitempty" msgpack:"temp_id"`
	IdempotencyKey string          `json:"idempotency_key" msgpack:"idempotency_key"`
}

// HasBody reports whether the record carries a payload to send.
// A literal JSON null counts as no payload.
func (r Record) HasBody() bool {
	trimmed := strings.TrimSpace(string(r.Body))
	return trimmed != "" && trimmed != "null"
}

// TempIDOf returns a pointer to v, for building records with a TempID.
func TempIDOf(v int64) *int64 {
	return &v
}
