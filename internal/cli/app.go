package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/kvstore"
	"github.com/roach88/fieldsync/internal/mutation"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/transport"
)

// queueStore is what every command needs from a queue backend.
type queueStore interface {
	engine.Queue
	engine.Leaser
	CountMutations(ctx context.Context) (map[mutation.Status]int, error)
	Close() error
}

// session is an opened queue plus the configuration it was opened with.
type session struct {
	cfg    *config.Config
	queue  queueStore
	cache  *store.Store // nil unless the sqlite backend is in use
	logger *slog.Logger
	closer []io.Closer
}

// loadConfig resolves config from file and environment, then applies the
// global flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Store != "" {
		cfg.Store = opts.Store
	}
	if err := config.Validate(nil, cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flag override", err)
	}
	return cfg, nil
}

// openSession loads config, configures logging and opens the queue.
// Diagnostics go to errOut unless the config names a log file.
func openSession(opts *RootOptions, errOut io.Writer) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	s.logger = s.newLogger(opts, errOut)

	switch cfg.Store {
	case "badger":
		kv, err := kvstore.Open(cfg.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
		}
		s.queue = kv
	default:
		st, err := store.Open(cfg.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
		}
		s.queue = st
		s.cache = st
	}
	s.logger.Debug("queue opened", "store", cfg.Store, "path", cfg.Database)

	return s, nil
}

// Close closes the queue and any log file.
func (s *session) Close() error {
	err := s.queue.Close()
	for _, c := range s.closer {
		c.Close()
	}
	return err
}

func (s *session) newLogger(opts *RootOptions, errOut io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	w := errOut
	if s.cfg.Log.File != "" {
		if dir := filepath.Dir(s.cfg.Log.File); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		lj := &lumberjack.Logger{
			Filename:   s.cfg.Log.File,
			MaxSize:    s.cfg.Log.MaxSizeMB,
			MaxBackups: s.cfg.Log.MaxBackups,
		}
		s.closer = append(s.closer, lj)
		w = lj
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newTransport builds the HTTP transport for the configured backend.
func (s *session) newTransport() (*transport.HTTP, error) {
	t, err := transport.New(s.cfg.Backend.BaseURL, transport.WithTimeout(s.cfg.Backend.Timeout.Std()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend", err)
	}
	return t, nil
}

// newEngine builds an engine over the session queue.
func (s *session) newEngine(t engine.Transport, connected bool) *engine.Engine {
	engOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithConnected(connected),
	}
	if s.cfg.Lease.Enabled {
		engOpts = append(engOpts, engine.WithLease(s.queue, engine.DefaultLeaseName, s.cfg.Lease.TTL.Std()))
	}
	return engine.New(s.queue, t, engOpts...)
}

// countPending returns the pending record count.
func (s *session) countPending(ctx context.Context) (int, error) {
	counts, err := s.queue.CountMutations(ctx)
	if err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return counts[mutation.StatusPending], nil
}
