// Package transfer performs the filesystem effect of one classified file.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/internal/logger"
	"github.com/moyu-x/file-organizer/pkg/hasher"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/scanner"
)

var (
	ErrDestinationExists = errors.New("destination already exists")
	ErrChecksumMismatch  = errors.New("checksum mismatch after copy")
)

type Options struct {
	// Verify re-reads every copy and compares digests.
	Verify bool
	Clock  func() time.Time
}

type Executor struct {
	fs   afero.Fs
	log  zerolog.Logger
	opts Options
}

func NewExecutor(fs afero.Fs, log zerolog.Logger, opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Executor{fs: fs, log: logger.Component(log, "transfer"), opts: opts}
}

// Transfer moves or copies c to dest. In dry-run nothing is touched and the
// returned entry is marked Simulated.
func (e *Executor) Transfer(c scanner.Candidate, dest, category string, mode internal.OperationMode, dryRun bool) (journal.Entry, error) {
	entry := journal.Entry{
		Op:          mode,
		Source:      c.Path,
		Destination: dest,
		Category:    category,
		Simulated:   dryRun,
	}
	if !mode.Valid() {
		return journal.Entry{}, errs.Wrap(errs.ErrTransfer, "transfer", "dispatch", c.Path, fmt.Errorf("unknown operation %q", mode))
	}
	if dryRun {
		entry.Timestamp = e.opts.Clock()
		return entry, nil
	}

	dir := filepath.Dir(dest)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return journal.Entry{}, errs.Wrap(errs.ErrTransfer, "transfer", "mkdir", dir, err)
	}

	switch mode {
	case internal.ModeMove:
		if err := e.Move(c.Path, dest); err != nil {
			return journal.Entry{}, err
		}
	case internal.ModeCopy:
		sum, err := e.copy(c.Path, dest)
		if err != nil {
			return journal.Entry{}, err
		}
		entry.Checksum = sum
	}

	entry.Timestamp = e.opts.Clock()
	e.log.Debug().Str("op", string(mode)).Str("source", c.Path).Str("destination", dest).Msg("transferred")
	return entry, nil
}

// Move renames src to dst, copying and deleting across devices. An existing
// dst is never replaced.
func (e *Executor) Move(src, dst string) error {
	if err := e.ensureFree(dst); err != nil {
		return errs.Wrap(errs.ErrTransfer, "transfer", "move", dst, err)
	}

	renameErr := e.fs.Rename(src, dst)
	if renameErr == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return errs.Wrap(errs.ErrTransfer, "transfer", "move", src, renameErr)
	}

	if _, err := e.copyFile(src, dst); err != nil {
		return errs.Wrap(errs.ErrTransfer, "transfer", "move", "cross-device copy of "+src, err)
	}
	if err := e.fs.Remove(src); err != nil {
		// keep exactly one copy: drop the new one rather than leave a duplicate
		if cleanupErr := e.fs.Remove(dst); cleanupErr != nil {
			e.log.Warn().Err(cleanupErr).Str("path", dst).Msg("failed to remove copy after failed move, duplicate remains")
		}
		return errs.Wrap(errs.ErrTransfer, "transfer", "move", "remove source "+src, err)
	}
	return nil
}

// Remove deletes a single file.
func (e *Executor) Remove(path string) error {
	if err := e.fs.Remove(path); err != nil {
		return errs.Wrap(errs.ErrTransfer, "transfer", "remove", path, err)
	}
	return nil
}

func (e *Executor) copy(src, dst string) (string, error) {
	sum, err := e.copyFile(src, dst)
	if err != nil {
		return "", errs.Wrap(errs.ErrTransfer, "transfer", "copy", src, err)
	}
	if !e.opts.Verify {
		return sum, nil
	}

	got, err := hasher.File(e.fs, dst)
	if err == nil && got != sum {
		err = fmt.Errorf("%w: %s != %s", ErrChecksumMismatch, got, sum)
	}
	if err != nil {
		if rmErr := e.fs.Remove(dst); rmErr != nil {
			e.log.Warn().Err(rmErr).Str("path", dst).Msg("failed to remove unverified copy")
		}
		return "", errs.Wrap(errs.ErrTransfer, "transfer", "verify", dst, err)
	}
	return sum, nil
}

// copyFile streams src into a newly created dst, hashing on the way, and
// carries over permission bits and modification time. A partial dst is
// removed on failure.
func (e *Executor) copyFile(src, dst string) (sum string, err error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	out, err := e.fs.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)
		}
		return "", err
	}
	defer func() {
		if err != nil {
			_ = e.fs.Remove(dst)
		}
	}()

	h := hasher.New()
	if _, err = io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return "", err
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return "", err
	}
	if err = out.Close(); err != nil {
		return "", err
	}

	if err = e.fs.Chmod(dst, info.Mode().Perm()); err != nil {
		return "", err
	}
	if err = e.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}
	return hasher.Format(h.Sum64()), nil
}

func (e *Executor) ensureFree(path string) error {
	_, err := lstat(e.fs, path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDestinationExists, path)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if ls, ok := fs.(afero.Lstater); ok {
		info, _, err := ls.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

// Exists reports whether anything, including a dangling symlink, sits at
// path.
func (e *Executor) Exists(path string) (bool, error) {
	_, err := lstat(e.fs, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// DirExists reports whether path is an existing directory.
func (e *Executor) DirExists(path string) (bool, error) {
	return afero.DirExists(e.fs, path)
}
