package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fieldsync/internal/mutation"
)

// Queue is the durable store the engine drains.
// Implemented by store.Store (SQLite) and kvstore.Store (Badger).
type Queue interface {
	InsertMutation(ctx context.Context, rec mutation.Record) (int64, error)
	// GetMutation returns mutation.ErrNotFound (possibly wrapped) when absent.
	GetMutation(ctx context.Context, id int64) (mutation.Record, error)
	DeleteMutation(ctx context.Context, id int64) error
	// ListMutations returns records with the given status in ascending id order.
	ListMutations(ctx context.Context, status mutation.Status) ([]mutation.Record, error)
	UpdateMutationTarget(ctx context.Context, id int64, url string, body json.RawMessage) error
}

// Leaser grants a named, expiring lock shared by every engine using the same
// store. AcquireLease renews the lease when holder already owns it; now is the
// caller's clock reading, and the lease expires at now+ttl.
type Leaser interface {
	AcquireLease(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// DefaultLeaseName is the lease key used when WithLease is given an empty name.
const DefaultLeaseName = "mutation_queue.drain"

// DefaultLeaseTTL bounds how long a crashed drainer blocks other processes.
const DefaultLeaseTTL = 30 * time.Second

// Engine owns connectivity state, the single drain pass, dependency
// resolution and status fan-out.
//
// Thread-safety model:
//   - Every exported method is safe from any goroutine
//   - ProcessQueue returns immediately when a pass is already running
//   - Subscriber callbacks run on the goroutine that changed state, outside
//     the engine lock, one publication at a time. They must not block and
//     must not call Subscribe, SetConnected, ProcessQueue or Enqueue
type Engine struct {
	queue     Queue
	transport Transport
	rewriter  Rewriter
	clock     Clock
	keys      KeyGenerator
	logger    *slog.Logger
	tracer    trace.Tracer

	lease     Leaser
	leaseName string
	leaseTTL  time.Duration
	holder    string // identifies this engine to the lease

	// notifyMu orders status publications; it is never taken while mu is held
	notifyMu sync.Mutex
	// background tracks drains started by ReportConnected
	background sync.WaitGroup

	mu             sync.Mutex
	connected      bool
	draining       bool
	lastPassFailed bool
	nextSubID      uint64
	subscribers    []subscriber
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock used for record timestamps and lease expiry.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRewriter replaces the dependency substitution strategy.
// Default: TextRewriter.
func WithRewriter(r Rewriter) Option {
	return func(e *Engine) {
		e.rewriter = r
	}
}

// WithKeyGenerator sets the source of per-record idempotency keys.
// Default: UUIDv7Generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(e *Engine) {
		e.keys = g
	}
}

// WithConnected sets the initial connectivity. Default: true.
func WithConnected(connected bool) Option {
	return func(e *Engine) {
		e.connected = connected
	}
}

// WithTracer sets the OpenTelemetry tracer. Default: the global provider's
// tracer, which is a no-op unless telemetry.Setup installed one.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithLease makes every drain pass hold a store lease so that two processes
// sharing one database never drain concurrently.
//
// An empty name uses DefaultLeaseName; a non-positive ttl uses DefaultLeaseTTL.
func WithLease(l Leaser, name string, ttl time.Duration) Option {
	return func(e *Engine) {
		e.lease = l
		e.leaseName = name
		e.leaseTTL = ttl
	}
}

// New creates an Engine draining q through t.
func New(q Queue, t Transport, opts ...Option) *Engine {
	e := &Engine{
		queue:     q,
		transport: t,
		rewriter:  TextRewriter{},
		clock:     SystemClock{},
		keys:      UUIDv7Generator{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/roach88/fieldsync/internal/engine"),
		connected: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.lease != nil {
		if e.leaseName == "" {
			e.leaseName = DefaultLeaseName
		}
		if e.leaseTTL <= 0 {
			e.leaseTTL = DefaultLeaseTTL
		}
		e.holder = e.keys.Generate()
	}

	return e
}

// Enqueue persists a write intent and then attempts a drain.
//
// Persistence does not depend on connectivity: an offline engine stores the
// record and returns. Failures of the follow-up drain are logged, never
// returned. The returned id is the record's queue position.
func (e *Engine) Enqueue(ctx context.Context, url string, method mutation.Method, body json.RawMessage, tempID *int64) (int64, error) {
	if !method.Valid() {
		return 0, &EnqueueError{
			Code:    ErrCodeInvalidMethod,
			Message: fmt.Sprintf("method %q must be one of %v", method, mutation.ValidMethods),
		}
	}
	if strings.TrimSpace(url) == "" {
		return 0, &EnqueueError{Code: ErrCodeEmptyURL, Message: "url is required"}
	}
	if len(body) > 0 && !json.Valid(body) {
		return 0, &EnqueueError{Code: ErrCodeInvalidBody, Message: "body is not valid JSON"}
	}

	rec := mutation.Record{
		URL:            url,
		Method:         method,
		Body:           body,
		Timestamp:      e.clock.Now().UnixMilli(),
		RetryCount:     0,
		Status:         mutation.StatusPending,
		IdempotencyKey: e.keys.Generate(),
	}
	if tempID != nil {
		rec.TempID = mutation.TempIDOf(*tempID)
	}

	id, err := e.queue.InsertMutation(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("enqueue mutation: %w", err)
	}
	e.logger.Debug("mutation enqueued", "mutation_id", id, "method", method, "url", url)

	if err := e.ProcessQueue(ctx); err != nil {
		e.logger.Warn("drain after enqueue failed", "error", err)
	}

	return id, nil
}

// SetConnected records network reachability. An offline to online
// transition starts a drain on the calling goroutine.
func (e *Engine) SetConnected(ctx context.Context, connected bool) {
	if e.recordConnected(connected) && connected {
		e.drainAfterReconnect(ctx)
	}
}

// ReportConnected records reachability like SetConnected, but runs the
// reconnect drain on its own goroutine and returns at once. A connectivity
// monitor reports through it so that probing, and a later drop to offline,
// continue while the pass is running. Wait blocks until such drains return.
func (e *Engine) ReportConnected(ctx context.Context, connected bool) {
	if !e.recordConnected(connected) || !connected {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		e.drainAfterReconnect(ctx)
	}()
}

// Wait blocks until every drain started by ReportConnected has returned.
func (e *Engine) Wait() {
	e.background.Wait()
}

// recordConnected stores the new value and publishes it. Reports whether it
// changed.
func (e *Engine) recordConnected(connected bool) bool {
	e.mu.Lock()
	changed := e.connected != connected
	e.connected = connected
	e.mu.Unlock()

	if !changed {
		return false
	}

	e.logger.Info("connectivity changed", "connected", connected)
	e.notify()
	return true
}

func (e *Engine) drainAfterReconnect(ctx context.Context) {
	if err := e.ProcessQueue(ctx); err != nil {
		e.logger.Warn("drain after reconnect failed", "error", err)
	}
}

// Connected reports the last connectivity value given to SetConnected.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// ProcessQueue drains every pending record in ascending id order.
//
// Returns nil immediately when a pass is already running or the engine is
// offline, so it is safe to call from every trigger (enqueue, reconnect,
// a manual retry). Transport failures leave the record pending and are
// logged; only store failures on the snapshot or lease are returned.
//
// A pass cut short by cancellation, lost connectivity or a lost lease only
// updates the error status when it saw a failure.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	e.mu.Lock()
	if e.draining || !e.connected {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.mu.Unlock()

	ran, completed, failed := false, false, false
	defer func() {
		e.mu.Lock()
		e.draining = false
		if ran && (completed || failed) {
			e.lastPassFailed = failed
		}
		e.mu.Unlock()
		e.notify()
	}()

	if e.lease != nil {
		ok, err := e.lease.AcquireLease(ctx, e.leaseName, e.holder, e.clock.Now(), e.leaseTTL)
		if err != nil {
			return fmt.Errorf("process queue: %w", err)
		}
		if !ok {
			e.logger.Debug("drain lease held by another process, skipping pass")
			return nil
		}
		defer func() {
			// Release even when ctx is already cancelled
			if err := e.lease.ReleaseLease(context.WithoutCancel(ctx), e.leaseName, e.holder); err != nil {
				e.logger.Warn("release drain lease failed", "error", err)
			}
		}()
	}

	e.notify()

	ctx, span := e.tracer.Start(ctx, "engine.drain")
	defer span.End()

	ran = true
	snapshot, err := e.queue.ListMutations(ctx, mutation.StatusPending)
	if err != nil {
		failed = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return fmt.Errorf("process queue: %w", err)
	}
	span.SetAttributes(attribute.Int("fieldsync.pending", len(snapshot)))

	completed = true
	for i, entry := range snapshot {
		if !e.Connected() {
			e.logger.Info("connectivity lost, pausing drain", "remaining", len(snapshot)-i)
			completed = false
			break
		}
		if err := ctx.Err(); err != nil {
			completed = false
			return err
		}
		if i > 0 && e.lease != nil {
			ok, err := e.lease.AcquireLease(ctx, e.leaseName, e.holder, e.clock.Now(), e.leaseTTL)
			if err != nil || !ok {
				e.logger.Warn("drain lease lost, pausing drain", "remaining", len(snapshot)-i, "error", err)
				if err != nil {
					failed = true
				}
				completed = false
				break
			}
		}

		// Re-read: resolution from an earlier iteration may have rewritten it
		rec, err := e.queue.GetMutation(ctx, entry.ID)
		if errors.Is(err, mutation.ErrNotFound) {
			e.logger.Debug("mutation vanished before dispatch, skipping", "mutation_id", entry.ID)
			continue
		}
		if err != nil {
			e.logger.Error("read mutation failed", "mutation_id", entry.ID, "error", err)
			failed = true
			continue
		}

		if err := e.syncItem(ctx, rec); err != nil {
			e.logger.Warn("mutation sync failed, will retry", "mutation_id", rec.ID, "url", rec.URL, "error", err)
			failed = true
			continue
		}
	}

	return nil
}
