package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/mutation"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

// Run executes a scenario against a fresh engine and evaluates its
// assertions.
//
// Returns an error only when the scenario could not be executed (store
// failure, invalid step). Assertion failures are reported in Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	stub := testutil.NewStubTransport()
	for i, r := range scenario.Responses {
		reply, err := toReply(r)
		if err != nil {
			return nil, fmt.Errorf("responses[%d]: %w", i, err)
		}
		stub.Script(reply)
	}
	if scenario.DefaultResponse != nil {
		reply, err := toReply(*scenario.DefaultResponse)
		if err != nil {
			return nil, fmt.Errorf("default_response: %w", err)
		}
		stub.SetDefault(reply)
	}

	rec := &recorder{}
	connected := true
	if scenario.Connected != nil {
		connected = *scenario.Connected
	}

	eng := engine.New(st, &recordingTransport{next: stub, rec: rec},
		engine.WithConnected(connected),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithKeyGenerator(&sequentialKeys{}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	unsubscribe := eng.Subscribe(func(s engine.Status) {
		rec.add(TraceEvent{Type: EventStatus, Status: string(s)})
	})

	for i, step := range scenario.Steps {
		if err := runStep(ctx, eng, rec, step); err != nil {
			unsubscribe()
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Action, err)
		}
	}
	unsubscribe()

	pending, err := st.ListMutations(ctx, mutation.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending: %w", err)
	}

	result := NewResult()
	result.Trace = rec.events()
	for _, p := range pending {
		result.Pending = append(result.Pending, PendingSnapshot{
			ID:     p.ID,
			Method: string(p.Method),
			URL:    p.URL,
			Body:   string(p.Body),
		})
	}

	for _, err := range EvaluateAssertions(scenario.Assertions, result) {
		result.AddError(err.Error())
	}

	return result, nil
}

func runStep(ctx context.Context, eng *engine.Engine, rec *recorder, step Step) error {
	switch step.Action {
	case StepEnqueue:
		method, err := mutation.ParseMethod(step.Method)
		if err != nil {
			return err
		}
		body, err := toJSON(step.Body)
		if err != nil {
			return err
		}
		// Record first: the drain started by Enqueue appends its own events
		idx := rec.add(TraceEvent{Type: EventEnqueue, Method: string(method), URL: step.URL, Body: string(body)})
		id, err := eng.Enqueue(ctx, step.URL, method, body, step.TempID)
		if err != nil {
			return err
		}
		rec.setMutationID(idx, id)
	case StepConnect:
		rec.add(TraceEvent{Type: EventConnect})
		eng.SetConnected(ctx, true)
	case StepDisconnect:
		rec.add(TraceEvent{Type: EventDisconnect})
		eng.SetConnected(ctx, false)
	case StepDrain:
		rec.add(TraceEvent{Type: EventDrain})
		if err := eng.ProcessQueue(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func toReply(r Response) (testutil.Reply, error) {
	if r.Error != "" {
		return testutil.Reply{Err: errors.New(r.Error)}, nil
	}
	body, err := toJSON(r.Body)
	if err != nil {
		return testutil.Reply{}, err
	}
	return testutil.Reply{Status: r.Status, Body: string(body)}, nil
}

// recorder assigns sequence numbers to trace events.
type recorder struct {
	mu    sync.Mutex
	trace []TraceEvent
}

func (r *recorder) add(ev TraceEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = len(r.trace) + 1
	r.trace = append(r.trace, ev)
	return len(r.trace) - 1
}

func (r *recorder) setMutationID(idx int, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace[idx].MutationID = id
}

func (r *recorder) events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.trace))
	copy(out, r.trace)
	return out
}

// recordingTransport appends a request event for every dispatch.
type recordingTransport struct {
	next engine.Transport
	rec  *recorder
}

func (t *recordingTransport) Dispatch(ctx context.Context, req engine.Request) (engine.Response, error) {
	resp, err := t.next.Dispatch(ctx, req)
	ev := TraceEvent{
		Type:           EventRequest,
		Method:         req.Method,
		URL:            req.URL,
		Body:           string(req.Body),
		IdempotencyKey: req.Header.Get("Idempotency-Key"),
	}
	if err != nil {
		ev.Error = err.Error()
	} else {
		ev.Response = resp.StatusCode
	}
	t.rec.add(ev)
	return resp, err
}

// sequentialKeys yields key-0001, key-0002, ...
type sequentialKeys struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialKeys) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("key-%04d", g.n)
}
