// Package transport sends queued mutations to the backend over HTTP.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fieldsync/internal/engine"
)

// maxResponseBytes caps how much of a response body is read. Only the id
// field of a create response is ever inspected.
const maxResponseBytes = 4 << 20

// HTTP dispatches engine requests with net/http.
//
// Implements engine.Transport.
type HTTP struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	headers http.Header
	tracer  trace.Tracer
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithClient replaces the HTTP client. Default: a new http.Client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithTimeout bounds each request. Zero (the default) means no timeout: a
// hung request stalls the drain pass until its context ends.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		h.timeout = d
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(h *HTTP) {
		h.headers.Add(key, value)
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(h *HTTP) {
		h.tracer = t
	}
}

// New creates a transport that resolves record URLs against baseURL the way
// a browser resolves a fetch URL against the page origin. An empty baseURL
// requires every record URL to be absolute.
func New(baseURL string, opts ...Option) (*HTTP, error) {
	h := &HTTP{
		client:  &http.Client{},
		headers: http.Header{},
		tracer:  otel.Tracer("github.com/roach88/fieldsync/internal/transport"),
	}

	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("base url %q must be absolute", baseURL)
		}
		h.base = base
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.timeout > 0 {
		c := *h.client
		c.Timeout = h.timeout
		h.client = &c
	}

	return h, nil
}

// Resolve returns the absolute URL a record URL is sent to.
func (h *HTTP) Resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if h.base != nil {
		ref = h.base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return "", fmt.Errorf("url %q is relative and no base url is configured", raw)
	}
	return ref.String(), nil
}

// Dispatch sends req and returns the response whatever its status.
// An error means no response was received.
func (h *HTTP) Dispatch(ctx context.Context, req engine.Request) (engine.Response, error) {
	target, err := h.Resolve(req.URL)
	if err != nil {
		return engine.Response{}, err
	}

	ctx, span := h.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return engine.Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range h.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := h.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return engine.Response{}, fmt.Errorf("%s %s: %w", req.Method, target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read response")
		return engine.Response{}, fmt.Errorf("read response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}

	return engine.Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
