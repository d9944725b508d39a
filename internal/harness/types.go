package harness

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass indicates if all assertions passed.
	Pass bool

	// Trace is the ordered record of everything the scenario did.
	Trace []TraceEvent

	// Pending holds the records left in the queue at the end.
	Pending []PendingSnapshot

	// Errors contains assertion failure messages.
	Errors []string
}

// NewResult creates a passing result with empty collections.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Pending: []PendingSnapshot{},
		Errors:  []string{},
	}
}

// AddError marks the result failed and records msg.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// Trace event types.
const (
	EventEnqueue    = "enqueue"
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventDrain      = "drain"
	EventRequest    = "request"
	EventStatus     = "status"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq            int    `json:"seq"`
	Type           string `json:"type"`
	MutationID     int64  `json:"mutation_id,omitempty"`
	Method         string `json:"method,omitempty"`
	URL            string `json:"url,omitempty"`
	Body           string `json:"body,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Response       int    `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	Status         string `json:"status,omitempty"`
}

// PendingSnapshot is a queue record as it stood at the end of a run.
type PendingSnapshot struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
}

// TraceSnapshot is the golden-file representation of a run.
type TraceSnapshot struct {
	ScenarioName string            `json:"scenario_name"`
	Trace        []TraceEvent      `json:"trace"`
	Pending      []PendingSnapshot `json:"pending"`
}
