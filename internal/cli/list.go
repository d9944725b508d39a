package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/fieldsync/internal/mutation"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending mutations in send order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts)
		},
	}
}

func runList(cmd *cobra.Command, opts *RootOptions) error {
	out := newFormatter(cmd, opts)

	s, err := openSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.queue.ListMutations(cmd.Context(), mutation.StatusPending)
	if err != nil {
		return WrapExitError(ExitFailure, "list failed", err)
	}

	return out.Success(records, func(w io.Writer) {
		p := message.NewPrinter(language.English)
		if len(records) == 0 {
			fmt.Fprintln(w, "No pending mutations.")
			return
		}
		for _, r := range records {
			line := fmt.Sprintf("%d\t%s\t%s", r.ID, r.Method, r.URL)
			if r.TempID != nil {
				line += fmt.Sprintf("\ttemp_id=%d", *r.TempID)
			}
			if r.HasBody() {
				line += "\t" + string(r.Body)
			}
			fmt.Fprintln(w, line)
		}
		p.Fprintf(w, "%d pending\n", len(records))
	})
}
