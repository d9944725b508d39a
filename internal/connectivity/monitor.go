// Package connectivity probes the backend and reports reachability changes.
//
// A Monitor replaces ambient online/offline events: it polls a probe URL and
// feeds transitions into a sink, normally engine.Engine.ReportConnected.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Sink receives reachability transitions. It runs on the Run goroutine; a
// sink that blocks delays the next probe.
type Sink func(ctx context.Context, connected bool)

// Monitor polls a probe URL at a fixed interval while reachable and on an
// exponential backoff while unreachable.
//
// Thread-safety: Check and Connected are safe from any goroutine. Run must
// be called at most once at a time.
type Monitor struct {
	probeURL     string
	sink         Sink
	client       *http.Client
	interval     time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	reported bool
	last     bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClient sets the HTTP client used for probes.
func WithClient(c *http.Client) Option {
	return func(m *Monitor) {
		m.client = c
	}
}

// WithInterval sets the poll interval while reachable. Default: 15s.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithBackoff sets the retry bounds while unreachable. Defaults: 1s and 1m.
func WithBackoff(lo, hi time.Duration) Option {
	return func(m *Monitor) {
		m.minBackoff = lo
		m.maxBackoff = hi
	}
}

// WithProbeTimeout bounds a single probe. Default: 5s.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.probeTimeout = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// New creates a Monitor probing probeURL and reporting to sink.
func New(probeURL string, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		probeURL:     probeURL,
		sink:         sink,
		client:       &http.Client{},
		interval:     15 * time.Second,
		minBackoff:   time.Second,
		maxBackoff:   time.Minute,
		probeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxBackoff < m.minBackoff {
		m.maxBackoff = m.minBackoff
	}
	return m
}

// Check performs one HEAD probe. Any HTTP response, whatever its status,
// counts as reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Error("build probe request", "url", m.probeURL, "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("probe failed", "url", m.probeURL, "error", err)
		return false
	}
	resp.Body.Close()
	return true
}

// Connected reports the last reported reachability, and whether any probe
// has been reported yet.
func (m *Monitor) Connected() (connected, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.reported
}

// Run probes until ctx is done. The first result is always reported; after
// that only transitions are. Returns nil when ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.minBackoff
	b.MaxInterval = m.maxBackoff
	b.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		up := m.Check(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.report(ctx, up)

		wait := m.interval
		if up {
			b.Reset()
		} else {
			wait = b.NextBackOff()
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) report(ctx context.Context, up bool) {
	m.mu.Lock()
	changed := !m.reported || m.last != up
	m.reported = true
	m.last = up
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("backend reachability changed", "url", m.probeURL, "connected", up)
	m.sink(ctx, up)
}
