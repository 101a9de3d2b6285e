package transfer

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/pkg/hasher"
	"github.com/moyu-x/file-organizer/pkg/scanner"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newExecutor(fs afero.Fs, verify bool) *Executor {
	return NewExecutor(fs, zerolog.Nop(), Options{
		Verify: verify,
		Clock:  func() time.Time { return fixedNow },
	})
}

func candidate(t *testing.T, fs afero.Fs, path string, content []byte) scanner.Candidate {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, content, 0o640))
	info, err := fs.Stat(path)
	require.NoError(t, err)
	return scanner.NewCandidate(path, info)
}

func TestTransferMove(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := candidate(t, fs, "/src/a.jpg", []byte("jpeg"))
	e := newExecutor(fs, false)

	entry, err := e.Transfer(c, "/dst/Images/a.jpg", "Images", internal.ModeMove, false)
	require.NoError(t, err)
	assert.Equal(t, internal.ModeMove, entry.Op)
	assert.Equal(t, "/src/a.jpg", entry.Source)
	assert.Equal(t, "/dst/Images/a.jpg", entry.Destination)
	assert.Equal(t, "Images", entry.Category)
	assert.Equal(t, fixedNow, entry.Timestamp)
	assert.False(t, entry.Simulated)
	assert.Empty(t, entry.Checksum)

	_, err = fs.Stat("/src/a.jpg")
	assert.True(t, os.IsNotExist(err))
	data, err := afero.ReadFile(fs, "/dst/Images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestTransferCopy(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte("a document")
	c := candidate(t, fs, "/src/b.pdf", content)
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, fs.Chtimes("/src/b.pdf", mtime, mtime))
	e := newExecutor(fs, true)

	entry, err := e.Transfer(c, "/dst/Documents/b.pdf", "Documents", internal.ModeCopy, false)
	require.NoError(t, err)
	assert.Equal(t, hasher.Bytes(content), entry.Checksum)

	src, err := afero.ReadFile(fs, "/src/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, src)

	info, err := fs.Stat("/dst/Documents/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestTransferDryRunTouchesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := candidate(t, fs, "/src/a.jpg", []byte("jpeg"))
	e := newExecutor(fs, false)

	for _, mode := range []internal.OperationMode{internal.ModeMove, internal.ModeCopy} {
		entry, err := e.Transfer(c, "/dst/Images/a.jpg", "Images", mode, true)
		require.NoError(t, err)
		assert.True(t, entry.Simulated)
		assert.Equal(t, mode, entry.Op)
	}

	exists, err := afero.DirExists(fs, "/dst")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = fs.Stat("/src/a.jpg")
	assert.NoError(t, err)
}

func TestTransferNeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := candidate(t, fs, "/src/a.jpg", []byte("new"))
	require.NoError(t, afero.WriteFile(fs, "/dst/Images/a.jpg", []byte("old"), 0o644))
	e := newExecutor(fs, false)

	for _, mode := range []internal.OperationMode{internal.ModeMove, internal.ModeCopy} {
		_, err := e.Transfer(c, "/dst/Images/a.jpg", "Images", mode, false)
		require.Error(t, err, mode)
		assert.ErrorIs(t, err, errs.ErrTransfer)
		assert.ErrorIs(t, err, ErrDestinationExists)
	}

	data, err := afero.ReadFile(fs, "/dst/Images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	_, err = fs.Stat("/src/a.jpg")
	assert.NoError(t, err)
}

func TestTransferMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := newExecutor(fs, false)
	c := scanner.Candidate{Path: "/src/gone.txt", Name: "gone.txt", Ext: ".txt"}

	_, err := e.Transfer(c, "/dst/Documents/gone.txt", "Documents", internal.ModeMove, false)
	assert.ErrorIs(t, err, errs.ErrTransfer)
	_, err = e.Transfer(c, "/dst/Documents/gone.txt", "Documents", internal.ModeCopy, false)
	assert.ErrorIs(t, err, errs.ErrTransfer)
}

func TestTransferUnknownMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := candidate(t, fs, "/src/a.jpg", []byte("x"))
	_, err := newExecutor(fs, false).Transfer(c, "/dst/a.jpg", "Images", "link", false)
	assert.ErrorIs(t, err, errs.ErrTransfer)
}

// crossDeviceFs fails every rename the way a move across mounts does.
type crossDeviceFs struct {
	afero.Fs
}

func (fs crossDeviceFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
}

func TestMoveFallsBackToCopyAcrossDevices(t *testing.T) {
	base := afero.NewMemMapFs()
	fs := crossDeviceFs{Fs: base}
	c := candidate(t, base, "/src/a.mp3", []byte("audio"))

	_, err := newExecutor(fs, false).Transfer(c, "/dst/Audio/a.mp3", "Audio", internal.ModeMove, false)
	require.NoError(t, err)

	_, err = base.Stat("/src/a.mp3")
	assert.True(t, os.IsNotExist(err))
	data, err := afero.ReadFile(base, "/dst/Audio/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))
}

// corruptingFs flips the first byte of every write to a newly opened file.
type corruptingFs struct {
	afero.Fs
}

func (fs corruptingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return corruptingFile{File: f}, nil
}

type corruptingFile struct {
	afero.File
}

func (f corruptingFile) Write(p []byte) (int, error) {
	q := append([]byte(nil), p...)
	if len(q) > 0 {
		q[0] ^= 0xff
	}
	return f.File.Write(q)
}

func TestCopyVerifyDetectsMismatch(t *testing.T) {
	base := afero.NewMemMapFs()
	fs := corruptingFs{Fs: base}
	c := candidate(t, base, "/src/b.txt", []byte("payload"))

	_, err := newExecutor(fs, true).Transfer(c, "/dst/Documents/b.txt", "Documents", internal.ModeCopy, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = base.Stat("/dst/Documents/b.txt")
	assert.True(t, os.IsNotExist(err), "unverified copy must be removed")
}

func TestRemoveAndExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/x/f", []byte("x"), 0o644))
	e := newExecutor(fs, false)

	ok, err := e.Exists("/x/f")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.DirExists("/x")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.Remove("/x/f"))
	ok, err = e.Exists("/x/f")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, e.Remove("/x/f"), errs.ErrTransfer)
}
