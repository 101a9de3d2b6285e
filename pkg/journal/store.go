package journal

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-organizer/internal/errs"
)

// Save writes j to path atomically: a temp file in the same directory is
// synced and then renamed over path.
func Save(fs afero.Fs, j *Journal, path string) error {
	data, err := Marshal(j)
	if err != nil {
		return errs.Wrap(errs.ErrSetup, "journal", "save", "encode", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrSetup, "journal", "save", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errs.Wrap(errs.ErrSetup, "journal", "save", "create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = fs.Remove(tmpName) }

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		cleanup()
		return errs.Wrap(errs.ErrSetup, "journal", "save", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return errs.Wrap(errs.ErrSetup, "journal", "save", "sync "+tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errs.Wrap(errs.ErrSetup, "journal", "save", tmpName, err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		cleanup()
		return errs.Wrap(errs.ErrSetup, "journal", "save", path, err)
	}
	return nil
}

// Load reads a saved journal. Any failure is a setup error; a document that
// does not parse also matches ErrFormat.
func Load(fs afero.Fs, path string) (*Journal, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "journal", "load", path, err)
	}
	j, err := Unmarshal(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "journal", "load", path, err)
	}
	return j, nil
}

// Open loads path, falling back to the partial file an interrupted run left
// next to it. The returned flag reports whether the fallback was used.
func Open(fs afero.Fs, path string) (*Journal, bool, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrSetup, "journal", "open", path, err)
	}
	if exists {
		j, err := Load(fs, path)
		return j, false, err
	}

	partial := PartialPath(path)
	if ok, _ := afero.Exists(fs, partial); ok {
		j, err := LoadPartial(fs, partial)
		return j, true, err
	}
	// report the path the user asked for
	j, err := Load(fs, path)
	return j, false, err
}
