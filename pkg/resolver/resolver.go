package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const maxAttempts = 10000

// Resolver hands out destination paths that neither exist on disk nor were
// handed out earlier in the same run. It is not safe for concurrent use.
type Resolver struct {
	fs      afero.Fs
	claimed map[string]struct{}
}

func New(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs, claimed: make(map[string]struct{})}
}

// Resolve returns desired when it is free, otherwise the first free
// "stem_N.ext" sibling with N counting up from 1. The returned path is
// claimed for the rest of the run, dry runs included.
func (r *Resolver) Resolve(desired string) (string, error) {
	desired = filepath.Clean(desired)
	free, err := r.free(desired)
	if err != nil {
		return "", err
	}
	if free {
		r.claim(desired)
		return desired, nil
	}

	dir, base := filepath.Split(desired)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}

	for i := 1; i <= maxAttempts; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		free, err := r.free(candidate)
		if err != nil {
			return "", err
		}
		if free {
			r.claim(candidate)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", desired, maxAttempts)
}

// Claimed reports whether path was handed out in this run.
func (r *Resolver) Claimed(path string) bool {
	_, ok := r.claimed[filepath.Clean(path)]
	return ok
}

func (r *Resolver) claim(path string) {
	r.claimed[path] = struct{}{}
}

func (r *Resolver) free(path string) (bool, error) {
	if _, ok := r.claimed[path]; ok {
		return false, nil
	}
	_, err := lstat(r.fs, path)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	return false, fmt.Errorf("check %s: %w", path, err)
}

// lstat keeps dangling symlinks counted as taken.
func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}
