package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ydoc/internal/engine"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Output string
}

// MergeResult reports what merge wrote.
type MergeResult struct {
	Inputs int    `json:"inputs"`
	Output string `json:"output"`
	Bytes  int    `json:"bytes"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <update-file>...",
		Short: "Merge update files into one update",
		Long: `Merge binary updates into a single update equivalent to applying all of
them. Fails when the inputs leave gaps (an update depends on one that is
not among the inputs).

Example:
  ydoc merge -o merged.bin a.bin b.bin c.bin`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", `output file ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// readUpdates reads every file concurrently, keeping argument order.
func readUpdates(ctx context.Context, paths []string) ([][]byte, error) {
	updates := make([][]byte, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := readInput(nil, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			updates[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updates, nil
}

func runMerge(ctx context.Context, opts *MergeOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, p := range paths {
		if p == "-" {
			return NewExitError(ExitCommandError, "merge reads files only, not stdin")
		}
	}
	updates, err := readUpdates(ctx, paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read updates", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	for i, u := range updates {
		out.VerboseLog("read %s (%d bytes)", paths[i], len(u))
	}

	merged, err := engine.MergeUpdates(updates...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to merge updates", err)
	}
	if err := writeOutput(cmd.OutOrStdout(), opts.Output, merged); err != nil {
		return WrapExitError(ExitCommandError, "failed to write merged update", err)
	}
	if opts.Output == "-" {
		return nil
	}

	result := MergeResult{Inputs: len(paths), Output: opts.Output, Bytes: len(merged)}
	return out.Result(result,
		fmt.Sprintf("Merged %d updates into %s (%d bytes)", result.Inputs, result.Output, result.Bytes))
}
