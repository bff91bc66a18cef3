package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ydoc/internal/engine"
	"github.com/roach88/ydoc/internal/ydoc"
)

// runCommand executes a subcommand built by newCmd with a fresh RootOptions.
func runCommand(t *testing.T, newCmd func(*RootOptions) *cobra.Command, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// listUpdates returns two updates from client 7: the first appends 1 to
// root "list", the second appends 2 and depends on the first.
func listUpdates(t *testing.T) (first, second []byte) {
	t.Helper()
	doc := ydoc.MustNew(ydoc.WithClientID(7))
	list, err := doc.GetArray("list")
	require.NoError(t, err)

	require.NoError(t, doc.Transact(func(txn *ydoc.Transaction) error {
		return list.Append(txn, 1)
	}))
	first, err = ydoc.EncodeStateAsUpdate(doc, nil)
	require.NoError(t, err)
	sv := ydoc.EncodeStateVector(doc)

	require.NoError(t, doc.Transact(func(txn *ydoc.Transaction) error {
		return list.Append(txn, 2)
	}))
	second, err = ydoc.EncodeStateAsUpdate(doc, sv)
	require.NoError(t, err)
	return first, second
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestApplyCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, second := listUpdates(t)
	firstPath := writeFile(t, dir, "first.bin", first)
	secondPath := writeFile(t, dir, "second.bin", second)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"out of order update waits", secondPath, "(waiting for missing updates)"},
		{"missing update arrives", firstPath, "Applied"},
		{"duplicate is a no-op", firstPath, "Update already stored for notes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", tt.path)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}

	out, err := runCommand(t, NewInspectCommand, "text", "--db", db, "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "list: [1,2]")
	assert.Contains(t, out, "2 updates")
}

func TestApplyCommand_InvalidUpdate(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	bad := writeFile(t, dir, "bad.bin", []byte{0xff, 0xff, 0xff})

	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err := runCommand(t, NewInspectCommand, "text", "--db", db, "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "0 updates")
}

func TestApplyCommand_MissingDatabase(t *testing.T) {
	_, err := runCommand(t, NewApplyCommand, "text", "notes", "update.bin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, second := listUpdates(t)
	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)
	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "second.bin", second))
	require.NoError(t, err)

	out := filepath.Join(dir, "export.bin")
	text, err := runCommand(t, NewExportCommand, "json", "--db", db, "notes", "-o", out)
	require.NoError(t, err)

	var response struct {
		Status string       `json:"status"`
		Data   ExportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "notes", response.Data.Document)

	update, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, len(update), response.Data.Bytes)

	replica := ydoc.MustNew(ydoc.WithClientID(99))
	require.NoError(t, ydoc.ApplyUpdate(replica, update))
	list, err := replica.GetArray("list")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, list.Values())
}

func TestExportCommand_WithStateVector(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, second := listUpdates(t)
	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)

	svPath := filepath.Join(dir, "sv.bin")
	_, err = runCommand(t, NewStateVectorCommand, "text", "--db", db, "notes", "-o", svPath)
	require.NoError(t, err)
	sv, err := os.ReadFile(svPath)
	require.NoError(t, err)
	decoded, err := engine.DecodeStateVector(sv)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), decoded.Get(7))

	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "second.bin", second))
	require.NoError(t, err)

	diffPath := filepath.Join(dir, "diff.bin")
	_, err = runCommand(t, NewExportCommand, "text", "--db", db, "notes", "--state-vector", svPath, "-o", diffPath)
	require.NoError(t, err)
	diff, err := os.ReadFile(diffPath)
	require.NoError(t, err)

	replica := ydoc.MustNew(ydoc.WithClientID(99))
	require.NoError(t, ydoc.ApplyUpdate(replica, first))
	require.NoError(t, ydoc.ApplyUpdate(replica, diff))
	assert.False(t, replica.HasPending())
	list, err := replica.GetArray("list")
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
}

func TestExportCommand_Stdout(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, _ := listUpdates(t)
	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)

	out, err := runCommand(t, NewExportCommand, "text", "--db", db, "notes", "-o", "-")
	require.NoError(t, err)

	replica := ydoc.MustNew(ydoc.WithClientID(99))
	require.NoError(t, ydoc.ApplyUpdate(replica, []byte(out)))
	assert.Equal(t, []string{"list"}, replica.RootNames())
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, _ := listUpdates(t)
	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		out, err := runCommand(t, NewInspectCommand, "json", "--db", db, "notes", "--root", "list:array")
		require.NoError(t, err)
		var response struct {
			Data InspectResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &response))
		assert.Equal(t, "notes", response.Data.Document)
		assert.Equal(t, 1, response.Data.Updates)
		assert.False(t, response.Data.Pending)
		assert.Equal(t, []any{float64(1)}, response.Data.Roots["list"])
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := runCommand(t, NewInspectCommand, "text", "--db", db, "notes", "--root", "list:array", "--root", "list:text")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("bad root flag", func(t *testing.T) {
		_, err := runCommand(t, NewInspectCommand, "text", "--db", db, "notes", "--root", "list")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestParseRootSpec(t *testing.T) {
	tests := []struct {
		spec    string
		name    string
		kind    engine.Kind
		wantErr bool
	}{
		{"body:text", "body", engine.KindText, false},
		{"tree:xml_element", "tree", engine.KindXMLElement, false},
		{"body", "", engine.KindUndefined, true},
		{":map", "", engine.KindUndefined, true},
		{"body:tree", "", engine.KindUndefined, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, kind, err := parseRootSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestCompactCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, second := listUpdates(t)
	_, err := runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)
	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "notes", writeFile(t, dir, "second.bin", second))
	require.NoError(t, err)

	out, err := runCommand(t, NewCompactCommand, "text", "--db", db, "notes")
	require.NoError(t, err)
	assert.Equal(t, "Compacted notes: removed 2 updates, 1 left\n", out)

	out, err = runCommand(t, NewInspectCommand, "text", "--db", db, "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "list: [1,2]")

	_, err = runCommand(t, NewCompactCommand, "text", "--db", db, "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	first, second := listUpdates(t)
	firstPath := writeFile(t, dir, "first.bin", first)
	secondPath := writeFile(t, dir, "second.bin", second)

	t.Run("complete set", func(t *testing.T) {
		out := filepath.Join(dir, "merged.bin")
		text, err := runCommand(t, NewMergeCommand, "text", "-o", out, secondPath, firstPath)
		require.NoError(t, err)
		assert.Contains(t, text, "Merged 2 updates into "+out)

		merged, err := os.ReadFile(out)
		require.NoError(t, err)
		replica := ydoc.MustNew(ydoc.WithClientID(99))
		require.NoError(t, ydoc.ApplyUpdate(replica, merged))
		list, err := replica.GetArray("list")
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, list.Values())
	})

	t.Run("verbose lists inputs on stderr", func(t *testing.T) {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		cmd := NewMergeCommand(&RootOptions{Format: "json", Verbose: true})
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		cmd.SetArgs([]string{"-o", filepath.Join(dir, "verbose.bin"), firstPath, secondPath})
		require.NoError(t, cmd.Execute())

		assert.Contains(t, stderr.String(), "read "+firstPath)
		assert.Contains(t, stderr.String(), "read "+secondPath)
		var resp CLIResponse
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("missing dependency", func(t *testing.T) {
		_, err := runCommand(t, NewMergeCommand, "text", "-o", filepath.Join(dir, "gap.bin"), secondPath)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("unreadable input", func(t *testing.T) {
		_, err := runCommand(t, NewMergeCommand, "text", "-o", filepath.Join(dir, "x.bin"), filepath.Join(dir, "nope.bin"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("stdin rejected", func(t *testing.T) {
		_, err := runCommand(t, NewMergeCommand, "text", "-o", filepath.Join(dir, "x.bin"), "-")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestInspectCommand_HashMatchesAcrossDocuments(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	first, second := listUpdates(t)
	merged, err := engine.MergeUpdates(first, second)
	require.NoError(t, err)

	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "a", writeFile(t, dir, "first.bin", first))
	require.NoError(t, err)
	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "a", writeFile(t, dir, "second.bin", second))
	require.NoError(t, err)
	_, err = runCommand(t, NewApplyCommand, "text", "--db", db, "b", writeFile(t, dir, "merged.bin", merged))
	require.NoError(t, err)

	hashOf := func(name string) string {
		out, err := runCommand(t, NewInspectCommand, "json", "--db", db, name)
		require.NoError(t, err)
		var response struct {
			Data InspectResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &response))
		require.NotEmpty(t, response.Data.Hash)
		return response.Data.Hash
	}
	assert.Equal(t, hashOf("a"), hashOf("b"))
}
