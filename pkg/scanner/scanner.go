package scanner

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Candidate is a regular file considered for transfer.
type Candidate struct {
	Path string
	Name string
	Ext  string
	Size int64
	Mode fs.FileMode
}

func NewCandidate(path string, info fs.FileInfo) Candidate {
	return Candidate{
		Path: path,
		Name: info.Name(),
		Ext:  strings.ToLower(filepath.Ext(info.Name())),
		Size: info.Size(),
		Mode: info.Mode(),
	}
}

var errStop = errors.New("walk stopped")

type FileWalker struct {
	fs      afero.Fs
	log     zerolog.Logger
	exclude map[string]bool
}

// NewFileWalker returns a walker that never yields, nor descends into, the
// excluded paths (typically the destination root and journal files).
func NewFileWalker(fs afero.Fs, log zerolog.Logger, exclude ...string) *FileWalker {
	w := &FileWalker{fs: fs, log: log, exclude: make(map[string]bool, len(exclude))}
	for _, p := range exclude {
		if p == "" {
			continue
		}
		w.exclude[absClean(p)] = true
	}
	return w
}

// Walk lazily yields the regular files under root in lexical order. Only
// direct children are visited unless recursive is set. Symbolic links are
// not regular files and are never followed. Errors on individual entries are
// yielded and the walk carries on.
func (w *FileWalker) Walk(root string, recursive bool) iter.Seq2[Candidate, error] {
	root = absClean(root)
	if recursive {
		return w.walkTree(root)
	}
	return w.walkFlat(root)
}

func (w *FileWalker) walkFlat(root string) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		entries, err := afero.ReadDir(w.fs, root)
		if err != nil {
			yield(Candidate{}, err)
			return
		}
		for _, info := range entries {
			path := filepath.Join(root, info.Name())
			if !info.Mode().IsRegular() || w.exclude[path] {
				continue
			}
			if !yield(NewCandidate(path, info), nil) {
				return
			}
		}
	}
}

func (w *FileWalker) walkTree(root string) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		_ = afero.Walk(w.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				w.log.Debug().Err(err).Str("path", path).Msg("cannot access path")
				if !yield(Candidate{}, err) {
					return errStop
				}
				if info != nil && info.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}

			if info.IsDir() {
				if path != root && w.exclude[path] {
					w.log.Debug().Str("path", path).Msg("skipping excluded directory")
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() || w.exclude[path] {
				return nil
			}
			if !yield(NewCandidate(path, info), nil) {
				return errStop
			}
			return nil
		})
	}
}

// CountFiles counts what Walk would yield, ignoring unreadable entries.
func (w *FileWalker) CountFiles(root string, recursive bool) int {
	count := 0
	for _, err := range w.Walk(root, recursive) {
		if err == nil {
			count++
		}
	}
	return count
}

func absClean(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
