package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/connectivity"
	"github.com/roach88/fieldsync/internal/engine"
)

// DrainResult is the drain command's output.
type DrainResult struct {
	Status    string `json:"status"`
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Send every pending mutation once, in order",
		Long: `Run one drain pass against the configured backend.

When probe.url is configured the backend is probed first and nothing is
sent if it is unreachable.

Exit codes:
  0 - Queue drained
  1 - Backend unreachable, or at least one record failed and stays queued
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(cmd, rootOpts)
		},
	}
}

func runDrain(cmd *cobra.Command, opts *RootOptions) error {
	out := newFormatter(cmd, opts)
	ctx := cmd.Context()

	s, err := openSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	before, err := s.countPending(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "drain failed", err)
	}

	if s.cfg.Probe.URL != "" {
		probe := connectivity.New(s.cfg.Probe.URL, nil, connectivity.WithLogger(s.logger))
		if !probe.Check(ctx) {
			result := DrainResult{Status: string(engine.StatusOffline), Remaining: before}
			return out.Fail(ExitFailure, "E_OFFLINE", "backend unreachable", result, func(w io.Writer) {
				fmt.Fprintf(w, "Backend unreachable; %d mutation(s) left queued\n", before)
			})
		}
	}

	t, err := s.newTransport()
	if err != nil {
		return err
	}
	eng := s.newEngine(t, true)

	if err := eng.ProcessQueue(ctx); err != nil {
		return WrapExitError(ExitFailure, "drain failed", err)
	}

	after, err := s.countPending(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "drain failed", err)
	}

	result := DrainResult{Status: string(eng.Status()), Sent: before - after, Remaining: after}
	text := func(w io.Writer) {
		fmt.Fprintf(w, "Sent %d, %d remaining (status: %s)\n", result.Sent, result.Remaining, result.Status)
	}
	if eng.Status() == engine.StatusError {
		return out.Fail(ExitFailure, "E_DRAIN_FAILED", fmt.Sprintf("%d mutation(s) failed and stay queued", after), result, text)
	}
	return out.Success(result, text)
}
