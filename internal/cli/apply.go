package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/ydoc"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
}

// ApplyResult reports what apply did.
type ApplyResult struct {
	Document string `json:"document"`
	Bytes    int    `json:"bytes"`
	Inserted bool   `json:"inserted"` // false when the update was already stored
	Pending  bool   `json:"pending"`  // true when the update waits for missing updates
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <doc> <update-file>",
		Short: "Append an update to a stored document",
		Long: `Decode a binary update, check that it applies to the stored document,
and append it to the document's update log.

The update is stored as given, including parts that wait for updates
not seen yet. Storing the same update twice is a no-op.

Use "-" as update-file to read from stdin.

Examples:
  ydoc apply --db ./docs.db notes ./update.bin
  ydoc apply --db ./docs.db notes - < update.bin`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runApply(ctx context.Context, opts *ApplyOptions, name, updatePath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	update, err := readInput(cmd.InOrStdin(), updatePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read update", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	out.VerboseLog("read update from %s (%d bytes)", updatePath, len(update))

	od, err := opts.openDocument(ctx, opts.Database, name)
	if err != nil {
		return err
	}
	defer od.Close()
	out.VerboseLog("loaded %s: client %d", name, od.doc.ClientID())

	// The raw update goes to the log below; recording the integrated part
	// as well would store it twice.
	if err := od.binding.Close(); err != nil {
		return err
	}
	if err := ydoc.ApplyUpdate(od.doc, update); err != nil {
		return WrapExitError(ExitFailure, "update does not apply", err)
	}
	inserted, err := od.store.AppendUpdate(ctx, name, update)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to store update", err)
	}

	result := ApplyResult{
		Document: name,
		Bytes:    len(update),
		Inserted: inserted,
		Pending:  od.doc.HasPending(),
	}
	text := fmt.Sprintf("Applied %d bytes to %s", result.Bytes, name)
	switch {
	case !inserted:
		text = fmt.Sprintf("Update already stored for %s", name)
	case result.Pending:
		text += " (waiting for missing updates)"
	}
	return out.Result(result, text)
}
