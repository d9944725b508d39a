package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fieldsync/internal/mutation"
)

// Request is one HTTP call the engine asks the transport to make.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil when the record has no payload
}

// Response is the outcome of a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs the network call for a queued record.
//
// Dispatch returns an error only when no response was received (network
// unreachable, connection reset). A response with any status code is
// returned as a Response.
type Transport interface {
	Dispatch(ctx context.Context, req Request) (Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (Response, error)

// Dispatch calls f(ctx, req).
func (f TransportFunc) Dispatch(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// syncItem sends one record. On success the record is deleted and, when it
// carried a temp id, the identifier from the response is propagated into
// every other pending record.
func (e *Engine) syncItem(ctx context.Context, rec mutation.Record) error {
	ctx, span := e.tracer.Start(ctx, "engine.dispatch", trace.WithAttributes(
		attribute.Int64("fieldsync.mutation_id", rec.ID),
		attribute.String("http.request.method", string(rec.Method)),
		attribute.String("url.path", rec.URL),
	))
	defer span.End()

	req := Request{
		Method: string(rec.Method),
		URL:    rec.URL,
		Header: http.Header{},
	}
	req.Header.Set("Content-Type", "application/json")
	if rec.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", rec.IdempotencyKey)
	}
	if rec.HasBody() {
		req.Body = []byte(rec.Body)
	}

	resp, err := e.transport.Dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failed")
		return fmt.Errorf("dispatch mutation %d: %w", rec.ID, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if !resp.OK() {
		err := &DispatchError{MutationID: rec.ID, StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// An accepted write is committed locally even when ctx is cancelled
	ctx = context.WithoutCancel(ctx)
	if err := e.queue.DeleteMutation(ctx, rec.ID); err != nil {
		// The server has the write; the idempotency key covers the resend.
		return fmt.Errorf("delete synced mutation %d: %w", rec.ID, err)
	}
	e.logger.Debug("mutation synced", "mutation_id", rec.ID, "status", resp.StatusCode)

	if rec.TempID == nil {
		return nil
	}

	realID, ok := extractID(resp.Body)
	if !ok {
		e.logger.Debug("no identifier in response, nothing to resolve", "mutation_id", rec.ID, "temp_id", *rec.TempID)
		return nil
	}

	if err := e.resolveDependencies(ctx, *rec.TempID, realID); err != nil {
		e.logger.Error("resolve dependencies failed", "temp_id", *rec.TempID, "real_id", realID, "error", err)
	}
	return nil
}

// extractID reads the created resource's identifier from a response body.
//
// Accepts a top-level object with an "id" field, or an array whose first
// element has one (the shape returned by representation-returning inserts).
// Numeric ids keep their literal text; string ids their unquoted value.
func extractID(body []byte) (string, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", false
	}

	root := gjson.ParseBytes(body)
	res := root.Get("id")
	if root.IsArray() {
		res = root.Get("0.id")
	}

	switch res.Type {
	case gjson.Number:
		return res.Raw, true
	case gjson.String:
		if res.Str == "" {
			return "", false
		}
		return res.Str, true
	default:
		return "", false
	}
}
