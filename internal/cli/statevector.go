package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/ydoc"
)

// StateVectorOptions holds flags for the state-vector command.
type StateVectorOptions struct {
	*RootOptions
	Database string
	Output   string
}

// NewStateVectorCommand creates the state-vector command.
func NewStateVectorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateVectorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state-vector <doc>",
		Short: "Write a document's encoded state vector",
		Long: `Write the stored document's state vector. Pass it to export on another
replica to get only the updates this one is missing.

Example:
  ydoc state-vector --db ./docs.db notes -o notes.sv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateVector(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", `output file ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runStateVector(ctx context.Context, opts *StateVectorOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	od, err := opts.openDocument(ctx, opts.Database, name)
	if err != nil {
		return err
	}
	defer od.Close()

	sv := ydoc.EncodeStateVector(od.doc)
	if err := writeOutput(cmd.OutOrStdout(), opts.Output, sv); err != nil {
		return WrapExitError(ExitCommandError, "failed to write state vector", err)
	}
	if opts.Output == "-" {
		return nil
	}
	result := ExportResult{Document: name, Output: opts.Output, Bytes: len(sv)}
	return newFormatter(opts.RootOptions, cmd).Result(result,
		fmt.Sprintf("Wrote %d bytes to %s", result.Bytes, result.Output))
}
