package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ir"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Roots    []string // name:kind pairs
}

// InspectResult describes a stored document.
type InspectResult struct {
	Document string         `json:"document"`
	GUID     string         `json:"guid"`
	ClientID uint64         `json:"client_id"`
	Updates  int            `json:"updates"`
	Pending  bool           `json:"pending"`
	Hash     string         `json:"hash"` // content hash, equal on converged replicas
	Roots    map[string]any `json:"roots"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <doc>",
		Short: "Print a document's roots as JSON",
		Long: `Load a stored document and print every root as JSON.

Roots only known from updates have no declared kind and are shown by
their content. Use --root name:kind to read a root as a given kind
(array, map, text, xml_element, xml_text).

Examples:
  ydoc inspect --db ./docs.db notes
  ydoc inspect --db ./docs.db notes --root body:text --root tree:xml_element`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringArrayVar(&opts.Roots, "root", nil, "root to read as a kind (name:kind, repeatable)")

	return cmd
}

// parseRootSpec splits "name:kind".
func parseRootSpec(spec string) (string, engine.Kind, error) {
	name, kindName, ok := strings.Cut(spec, ":")
	if !ok || name == "" {
		return "", engine.KindUndefined, fmt.Errorf("invalid root %q: want name:kind", spec)
	}
	kind, err := engine.ParseKind(kindName)
	if err != nil {
		return "", engine.KindUndefined, err
	}
	return name, kind, nil
}

func runInspect(ctx context.Context, opts *InspectOptions, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	type rootSpec struct {
		name string
		kind engine.Kind
	}
	specs := make([]rootSpec, 0, len(opts.Roots))
	for _, s := range opts.Roots {
		rootName, kind, err := parseRootSpec(s)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --root", err)
		}
		specs = append(specs, rootSpec{rootName, kind})
	}

	od, err := opts.openDocument(ctx, opts.Database, name)
	if err != nil {
		return err
	}
	defer od.Close()

	for _, s := range specs {
		if _, err := od.doc.Root(s.name, s.kind); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to read root %s", s.name), err)
		}
	}
	count, err := od.store.UpdateCount(ctx, name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count updates", err)
	}

	snap := od.doc.Snapshot()
	hash, err := ir.SnapshotHash(snap)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash document", err)
	}
	result := InspectResult{
		Document: name,
		GUID:     od.doc.GUID(),
		ClientID: od.doc.ClientID(),
		Updates:  count,
		Pending:  od.doc.HasPending(),
		Hash:     hash,
		Roots:    make(map[string]any, len(snap)),
	}
	var text strings.Builder
	fmt.Fprintf(&text, "Document %s (client %d, %d updates)\n  hash: %s", name, result.ClientID, count, hash)
	for _, rootName := range snap.SortedKeys() {
		result.Roots[rootName] = ir.ToNative(snap[rootName])
		data, err := ir.MarshalCanonical(snap[rootName])
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to render root %s", rootName), err)
		}
		fmt.Fprintf(&text, "\n  %s: %s", rootName, data)
	}
	if result.Pending {
		text.WriteString("\n  (has updates waiting for missing updates)")
	}
	return newFormatter(opts.RootOptions, cmd).Result(result, text.String())
}
