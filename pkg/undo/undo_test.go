package undo

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/scanner"
	"github.com/moyu-x/file-organizer/pkg/transfer"
)

type fixture struct {
	fs   afero.Fs
	exec *transfer.Executor
	j    *journal.Journal
}

func newFixture() *fixture {
	fs := afero.NewMemMapFs()
	return &fixture{
		fs:   fs,
		exec: transfer.NewExecutor(fs, zerolog.Nop(), transfer.Options{}),
		j:    journal.New(journal.Meta{RunID: "test", CreatedAt: time.Now()}),
	}
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0o644))
}

func (f *fixture) do(t *testing.T, src, dst string, mode internal.OperationMode) {
	t.Helper()
	info, err := f.fs.Stat(src)
	require.NoError(t, err)
	e, err := f.exec.Transfer(scanner.NewCandidate(src, info), dst, "Test", mode, false)
	require.NoError(t, err)
	require.NoError(t, f.j.Append(e))
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := afero.Exists(f.fs, path)
	require.NoError(t, err)
	return ok
}

func TestUndoRestoresMovesAndDeletesCopies(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/a.jpg", "A")
	f.write(t, "/src/b.txt", "B")
	f.do(t, "/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)
	f.do(t, "/src/b.txt", "/dst/Documents/b.txt", internal.ModeCopy)

	s, err := New(f.exec, zerolog.Nop()).Undo(context.Background(), f.j, false)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Reversed)
	assert.Equal(t, 0, s.Failed)

	require.Len(t, s.Results, 2)
	assert.Equal(t, ActionDelete, s.Results[0].Action, "newest entry first")
	assert.Equal(t, ActionRestore, s.Results[1].Action)

	assert.Equal(t, "A", f.read(t, "/src/a.jpg"))
	assert.Equal(t, "B", f.read(t, "/src/b.txt"))
	assert.False(t, f.exists(t, "/dst/Images/a.jpg"))
	assert.False(t, f.exists(t, "/dst/Documents/b.txt"))
}

func TestSecondUndoReportsMissingDestinations(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/a.jpg", "A")
	f.do(t, "/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)

	u := New(f.exec, zerolog.Nop())
	_, err := u.Undo(context.Background(), f.j, false)
	require.NoError(t, err)

	s, err := u.Undo(context.Background(), f.j, false)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Reversed)
	assert.Equal(t, 1, s.Failed)
	assert.ErrorIs(t, s.Results[0].Err, ErrDestinationMissing)
	assert.ErrorIs(t, s.Results[0].Err, errs.ErrUndo)
	assert.Equal(t, "A", f.read(t, "/src/a.jpg"))
}

func TestUndoReverseOrderFreesPaths(t *testing.T) {
	f := newFixture()
	f.write(t, "/a/f.txt", "first")
	f.do(t, "/a/f.txt", "/b/f.txt", internal.ModeMove)
	f.write(t, "/c/f.txt", "second")
	f.do(t, "/c/f.txt", "/a/f.txt", internal.ModeMove)

	s, err := New(f.exec, zerolog.Nop()).Undo(context.Background(), f.j, false)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Reversed)
	assert.Equal(t, "first", f.read(t, "/a/f.txt"))
	assert.Equal(t, "second", f.read(t, "/c/f.txt"))
	assert.False(t, f.exists(t, "/b/f.txt"))
}

func TestUndoNeverOverwritesOccupiedSource(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/a.jpg", "A")
	f.write(t, "/src/b.jpg", "B")
	f.do(t, "/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)
	f.do(t, "/src/b.jpg", "/dst/Images/b.jpg", internal.ModeMove)
	f.write(t, "/src/a.jpg", "intruder")

	s, err := New(f.exec, zerolog.Nop()).Undo(context.Background(), f.j, false)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reversed)
	assert.Equal(t, 1, s.Failed)
	assert.ErrorIs(t, s.Results[1].Err, ErrSourceOccupied)

	assert.Equal(t, "intruder", f.read(t, "/src/a.jpg"))
	assert.Equal(t, "A", f.read(t, "/dst/Images/a.jpg"))
	assert.Equal(t, "B", f.read(t, "/src/b.jpg"))
}

func TestUndoMissingSourceDirectory(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/sub/a.jpg", "A")
	f.do(t, "/src/sub/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)
	require.NoError(t, f.fs.RemoveAll("/src/sub"))

	s, err := New(f.exec, zerolog.Nop()).Undo(context.Background(), f.j, false)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed)
	assert.ErrorIs(t, s.Results[0].Err, ErrSourceParentMissing)
	assert.True(t, f.exists(t, "/dst/Images/a.jpg"))
}

func TestUndoDryRunChecksWithoutMutating(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/a.jpg", "A")
	f.write(t, "/src/b.txt", "B")
	f.do(t, "/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)
	f.do(t, "/src/b.txt", "/dst/Documents/b.txt", internal.ModeCopy)
	require.NoError(t, f.fs.Remove("/dst/Documents/b.txt"))

	s, err := New(f.exec, zerolog.Nop()).Undo(context.Background(), f.j, true)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Reversed)
	assert.Equal(t, 1, s.Failed)
	assert.ErrorIs(t, s.Results[0].Err, ErrDestinationMissing)
	assert.NoError(t, s.Results[1].Err)

	assert.True(t, f.exists(t, "/dst/Images/a.jpg"))
	assert.False(t, f.exists(t, "/src/a.jpg"))
}

func TestUndoStopsOnCancel(t *testing.T) {
	f := newFixture()
	f.write(t, "/src/a.jpg", "A")
	f.do(t, "/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(f.exec, zerolog.Nop()).Undo(ctx, f.j, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Results)
	assert.True(t, f.exists(t, "/dst/Images/a.jpg"))
}
