package testutil

import (
	"context"
	"net/http"
	"sync"

	"github.com/roach88/fieldsync/internal/engine"
)

// Reply is one scripted transport outcome. A non-nil Err simulates a network
// failure and no response is returned.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// Call is one request the stub received, captured by value.
type Call struct {
	Method string
	URL    string
	Header http.Header
	Body   string // "" when the request carried no body
}

// StubTransport records every dispatch and answers from a script.
//
// Scripted replies are consumed in order; once the script is exhausted the
// default reply (200 with body "{}") is used. A hook installed with OnDispatch
// runs before the reply is chosen and may block to hold a drain pass open.
//
// Implements engine.Transport.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StubTransport struct {
	mu       sync.Mutex
	calls    []Call
	script   []Reply
	fallback Reply
	hook     func(ctx context.Context, call Call)
}

// NewStubTransport creates a stub that answers every call with 200 "{}".
func NewStubTransport(script ...Reply) *StubTransport {
	return &StubTransport{
		script:   script,
		fallback: Reply{Status: http.StatusOK, Body: "{}"},
	}
}

// Script appends replies to the end of the script.
func (s *StubTransport) Script(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, replies...)
}

// SetDefault replaces the reply used once the script is exhausted.
func (s *StubTransport) SetDefault(r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = r
}

// OnDispatch installs a hook called for every request after it is recorded.
func (s *StubTransport) OnDispatch(fn func(ctx context.Context, call Call)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// Dispatch records req and returns the next scripted reply.
func (s *StubTransport) Dispatch(ctx context.Context, req engine.Request) (engine.Response, error) {
	call := Call{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header.Clone(),
		Body:   string(req.Body),
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}

	s.mu.Lock()
	reply := s.fallback
	if len(s.script) > 0 {
		reply = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if reply.Err != nil {
		return engine.Response{}, reply.Err
	}
	return engine.Response{StatusCode: reply.Status, Body: []byte(reply.Body)}, nil
}

// Calls returns a copy of every recorded call in arrival order.
func (s *StubTransport) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (s *StubTransport) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Reset clears recorded calls and the remaining script. The default reply
// and hook are kept.
func (s *StubTransport) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.script = nil
}
