package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/persist"
	"github.com/roach88/ydoc/internal/store"
)

// CompactOptions holds flags for the compact command.
type CompactOptions struct {
	*RootOptions
	Database string
}

// CompactResult reports the effect of compaction.
type CompactResult struct {
	Document string `json:"document"`
	Removed  int64  `json:"removed"`
	Updates  int    `json:"updates"`
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compact <doc>",
		Short: "Merge a document's update log into one update",
		Long: `Replace every stored update of a document with a single merged update.
The document's content does not change.

Example:
  ydoc compact --db ./docs.db notes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runCompact(ctx context.Context, opts *CompactOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := opts.databasePath(opts.Database)
	if err != nil {
		return err
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if _, err := st.GetDocument(ctx, name); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("document %s not found", name), err)
	}
	removed, err := persist.Compact(ctx, st, name)
	if err != nil {
		return WrapExitError(ExitFailure, "compaction failed", err)
	}
	count, err := st.UpdateCount(ctx, name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count updates", err)
	}

	result := CompactResult{Document: name, Removed: removed, Updates: count}
	return newFormatter(opts.RootOptions, cmd).Result(result,
		fmt.Sprintf("Compacted %s: removed %d updates, %d left", name, removed, count))
}
