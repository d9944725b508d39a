package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/store"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline read cache (sqlite store only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put <collection> <file.json>",
		Short: "Replace a collection with the entries in a JSON file",
		Long: `Replace every cached row of a collection in one transaction.

The file holds a JSON array of {"key": "...", "data": <any JSON>} objects.
Use "-" to read from stdin. An empty array clears the collection.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePut(cmd, rootOpts, args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <collection>",
		Short: "Print a collection's cached rows ordered by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(cmd, rootOpts, args[0])
		},
	})

	return cmd
}

func openCache(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	s, err := openSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		s.Close()
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("offline cache requires the sqlite store, not %q", s.cfg.Store))
	}
	return s, nil
}

func readEntries(cmd *cobra.Command, path string) ([]store.CacheEntry, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	var entries []store.CacheEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entries); err != nil {
		return nil, WrapExitError(ExitCommandError, "entries must be a JSON array of {key, data}", err)
	}
	for i, e := range entries {
		if e.Key == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("entry %d: key is required", i))
		}
		if len(e.Data) == 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("entry %q: data is required", e.Key))
		}
	}
	return entries, nil
}

func runCachePut(cmd *cobra.Command, opts *RootOptions, collection, path string) error {
	out := newFormatter(cmd, opts)

	entries, err := readEntries(cmd, path)
	if err != nil {
		return err
	}

	s, err := openCache(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.cache.BulkReplace(cmd.Context(), collection, entries); err != nil {
		return WrapExitError(ExitFailure, "cache replace failed", err)
	}

	result := map[string]any{"collection": collection, "entries": len(entries)}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Replaced %s with %d entries\n", collection, len(entries))
	})
}

func runCacheList(cmd *cobra.Command, opts *RootOptions, collection string) error {
	out := newFormatter(cmd, opts)

	s, err := openCache(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.cache.ListCache(cmd.Context(), collection)
	if err != nil {
		return WrapExitError(ExitFailure, "cache list failed", err)
	}

	return out.Success(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintf(w, "%s is empty\n", collection)
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Data)
		}
	})
}
