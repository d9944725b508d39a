package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/connectivity"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/statusws"
	"github.com/roach88/fieldsync/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API, status WebSocket and connectivity monitor",
		Long: `Serve the sync engine to a local UI.

With probe.url configured the engine starts offline and drains as soon as
the first probe succeeds; without it the engine assumes connectivity and
drains once at startup. Stops on SIGINT or SIGTERM.

Example:
  fieldsync serve --config fieldsync.cue --listen 127.0.0.1:8787`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

// server is the wired set of long-running components.
type server struct {
	session *session
	engine  *engine.Engine
	monitor *connectivity.Monitor // nil when probe.url is unset
	feed    *statusws.Handler
	handler http.Handler
}

func newServer(s *session) (*server, error) {
	t, err := s.newTransport()
	if err != nil {
		return nil, err
	}

	probed := s.cfg.Probe.URL != ""
	eng := s.newEngine(t, !probed)

	srv := &server{session: s, engine: eng}
	if probed {
		srv.monitor = connectivity.New(s.cfg.Probe.URL, eng.ReportConnected,
			connectivity.WithInterval(s.cfg.Probe.Interval.Std()),
			connectivity.WithBackoff(s.cfg.Probe.MinBackoff.Std(), s.cfg.Probe.MaxBackoff.Std()),
			connectivity.WithLogger(s.logger),
		)
	}

	srv.feed = statusws.New(eng, statusws.WithLogger(s.logger))

	routerCfg := api.Config{
		Engine:     eng,
		Queue:      s.queue,
		StatusFeed: srv.feed,
		Logger:     s.logger,
	}
	if s.cache != nil {
		routerCfg.Cache = s.cache
		routerCfg.Health = s.cache.Ping
	}
	srv.handler = api.NewRouter(routerCfg)

	return srv, nil
}

// run serves on ln until ctx is done, then shuts down gracefully and waits
// for the monitor and any drain it started.
func (srv *server) run(ctx context.Context, ln net.Listener) error {
	logger := srv.session.logger

	httpSrv := &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	bgCtx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBackground()
		wg.Wait()
		srv.engine.Wait()
	}()

	wg.Add(1)
	if srv.monitor != nil {
		go func() {
			defer wg.Done()
			if err := srv.monitor.Run(bgCtx); err != nil {
				logger.Error("connectivity monitor stopped", "error", err)
			}
		}()
	} else {
		go func() {
			defer wg.Done()
			if err := srv.engine.ProcessQueue(bgCtx); err != nil {
				logger.Warn("startup drain failed", "error", err)
			}
		}()
	}

	logger.Info("serving", "addr", ln.Addr().String())

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	shutdownTracing, err := telemetry.Setup(ctx, "fieldsync", s.cfg.Telemetry.OTELEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	srv, err := newServer(s)
	if err != nil {
		return err
	}

	addr := s.cfg.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	if opts.Format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "fieldsync serving on http://%s\n", ln.Addr())
	}

	if err := srv.run(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
