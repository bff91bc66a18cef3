package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/roach88/ydoc/internal/persist"
	"github.com/roach88/ydoc/internal/store"
	"github.com/roach88/ydoc/internal/ydoc"
)

// openedDocument is a stored document loaded for one command.
type openedDocument struct {
	store   *store.Store
	doc     *ydoc.Document
	binding *persist.Binding
}

// openDocument opens the database and loads the document called name with
// its configured options. Updates committed to the document are recorded.
func (o *RootOptions) openDocument(ctx context.Context, dbFlag, name string) (*openedDocument, error) {
	path, err := o.databasePath(dbFlag)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	opts := append(o.Config().DocumentOptions(name), o.documentOptions()...)
	doc, binding, err := persist.Open(ctx, st, name, opts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load document %s", name), err)
	}
	return &openedDocument{store: st, doc: doc, binding: binding}, nil
}

func (o *RootOptions) documentOptions() []ydoc.Option {
	var opts []ydoc.Option
	if o.metrics != nil {
		opts = append(opts, ydoc.WithMetrics(o.metrics))
	}
	return opts
}

// Close releases the binding and the database.
func (d *openedDocument) Close() error {
	if err := d.binding.Close(); err != nil {
		return err
	}
	return d.store.Close()
}

// readInput reads a file, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes data to path, or stdout when path is "-".
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
