package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/fieldsync/internal/connectivity"
	"github.com/roach88/fieldsync/internal/mutation"
)

// StatusResult is the status command's output.
type StatusResult struct {
	Store      string `json:"store"`
	Database   string `json:"database"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Failed     int    `json:"failed"`
	// Connected is nil when no probe url is configured.
	Connected *bool `json:"connected,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and backend reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	out := newFormatter(cmd, opts)
	ctx := cmd.Context()

	s, err := openSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	counts, err := s.queue.CountMutations(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "status failed", err)
	}

	result := StatusResult{
		Store:      s.cfg.Store,
		Database:   s.cfg.Database,
		Pending:    counts[mutation.StatusPending],
		Processing: counts[mutation.StatusProcessing],
		Failed:     counts[mutation.StatusFailed],
	}
	if s.cfg.Probe.URL != "" {
		up := connectivity.New(s.cfg.Probe.URL, nil, connectivity.WithLogger(s.logger)).Check(ctx)
		result.Connected = &up
	}

	return out.Success(result, func(w io.Writer) {
		p := message.NewPrinter(language.English)
		p.Fprintf(w, "Queue:      %s (%s)\n", result.Database, result.Store)
		p.Fprintf(w, "Pending:    %d\n", result.Pending)
		p.Fprintf(w, "Processing: %d\n", result.Processing)
		p.Fprintf(w, "Failed:     %d\n", result.Failed)
		switch {
		case result.Connected == nil:
			fmt.Fprintln(w, "Backend:    not probed (probe.url unset)")
		case *result.Connected:
			fmt.Fprintln(w, "Backend:    reachable")
		default:
			fmt.Fprintln(w, "Backend:    unreachable")
		}
	})
}
