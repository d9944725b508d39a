package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRequests:\n")
	for _, event := range e.Trace {
		if event.Type != EventRequest {
			continue
		}
		outcome := fmt.Sprintf("%d", event.Response)
		if event.Error != "" {
			outcome = "error: " + event.Error
		}
		fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", event.Seq, event.Method, event.URL, event.Body, outcome)
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns one
// error per failure.
func EvaluateAssertions(assertions []Assertion, result *Result) []error {
	var errs []error
	for _, a := range assertions {
		if err := evaluateAssertion(a, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, result *Result) error {
	switch a.Type {
	case AssertCallCount:
		return assertCallCount(result.Trace, a)
	case AssertCall:
		return assertCall(result.Trace, a)
	case AssertPendingCount:
		return assertPendingCount(result, a)
	case AssertStatusSequence:
		return assertStatusSequence(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func requests(trace []TraceEvent) []TraceEvent {
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Type == EventRequest {
			out = append(out, ev)
		}
	}
	return out
}

func assertCallCount(trace []TraceEvent, a Assertion) error {
	got := len(requests(trace))
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallCount,
		Expected: fmt.Sprintf("%d transport calls", a.Count),
		Actual:   fmt.Sprintf("%d transport calls", got),
		Trace:    trace,
	}
}

// assertCall checks the Nth request. Empty expectation fields are skipped.
func assertCall(trace []TraceEvent, a Assertion) error {
	reqs := requests(trace)
	if a.Index > len(reqs) {
		return &AssertionError{
			Type:     AssertCall,
			Expected: fmt.Sprintf("call #%d", a.Index),
			Actual:   fmt.Sprintf("only %d calls", len(reqs)),
			Trace:    trace,
		}
	}
	got := reqs[a.Index-1]

	var mismatches []string
	if a.Method != "" && !strings.EqualFold(a.Method, got.Method) {
		mismatches = append(mismatches, fmt.Sprintf("method %s != %s", got.Method, a.Method))
	}
	if a.URL != "" && a.URL != got.URL {
		mismatches = append(mismatches, fmt.Sprintf("url %s != %s", got.URL, a.URL))
	}
	if a.Body != nil {
		ok, err := jsonEqual(a.Body, got.Body)
		if err != nil {
			mismatches = append(mismatches, err.Error())
		} else if !ok {
			want, _ := toJSON(a.Body)
			mismatches = append(mismatches, fmt.Sprintf("body %s != %s", got.Body, want))
		}
	}

	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertCall,
		Expected: fmt.Sprintf("call #%d to match", a.Index),
		Actual:   strings.Join(mismatches, "; "),
		Trace:    trace,
	}
}

func assertPendingCount(result *Result, a Assertion) error {
	if len(result.Pending) == a.Count {
		return nil
	}
	ids := make([]string, len(result.Pending))
	for i, p := range result.Pending {
		ids[i] = fmt.Sprintf("%d", p.ID)
	}
	return &AssertionError{
		Type:     AssertPendingCount,
		Expected: fmt.Sprintf("%d pending records", a.Count),
		Actual:   fmt.Sprintf("%d pending records [%s]", len(result.Pending), strings.Join(ids, ", ")),
		Trace:    result.Trace,
	}
}

func assertStatusSequence(trace []TraceEvent, a Assertion) error {
	var got []string
	for _, ev := range trace {
		if ev.Type == EventStatus {
			got = append(got, ev.Status)
		}
	}
	if reflect.DeepEqual(got, a.Statuses) {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatusSequence,
		Expected: fmt.Sprintf("%v", a.Statuses),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// jsonEqual compares a YAML expectation against a JSON body structurally.
func jsonEqual(want any, got string) (bool, error) {
	wantJSON, err := toJSON(want)
	if err != nil {
		return false, fmt.Errorf("expected body: %w", err)
	}
	if got == "" {
		return false, nil
	}

	var w, g any
	if err := json.Unmarshal(wantJSON, &w); err != nil {
		return false, fmt.Errorf("expected body: %w", err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		return false, fmt.Errorf("actual body is not JSON: %w", err)
	}
	return reflect.DeepEqual(w, g), nil
}
