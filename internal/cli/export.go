package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/ydoc"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database    string
	StateVector string // file holding the remote state vector
	Output      string
}

// ExportResult reports what export wrote.
type ExportResult struct {
	Document string `json:"document"`
	Output   string `json:"output"`
	Bytes    int    `json:"bytes"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <doc>",
		Short: "Write a document as a binary update",
		Long: `Encode the stored document as one binary update.

With --state-vector, only what a replica holding that state vector lacks
is written.

Examples:
  ydoc export --db ./docs.db notes -o notes.bin
  ydoc export --db ./docs.db notes --state-vector remote.sv -o diff.bin`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.StateVector, "state-vector", "", "encoded state vector of the receiving replica")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", `output file ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var sv []byte
	if opts.StateVector != "" {
		data, err := readInput(cmd.InOrStdin(), opts.StateVector)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read state vector", err)
		}
		sv = data
	}

	od, err := opts.openDocument(ctx, opts.Database, name)
	if err != nil {
		return err
	}
	defer od.Close()

	update, err := ydoc.EncodeStateAsUpdate(od.doc, sv)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode update", err)
	}
	if err := writeOutput(cmd.OutOrStdout(), opts.Output, update); err != nil {
		return WrapExitError(ExitCommandError, "failed to write update", err)
	}
	if opts.Output == "-" {
		return nil
	}

	result := ExportResult{Document: name, Output: opts.Output, Bytes: len(update)}
	return newFormatter(opts.RootOptions, cmd).Result(result,
		fmt.Sprintf("Wrote %d bytes to %s", result.Bytes, result.Output))
}
