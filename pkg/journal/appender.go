package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
)

// PartialPath is where the in-flight copy of the journal saved at path lives.
func PartialPath(path string) string {
	return path + internal.PartialSuffix
}

// Appender mirrors a running journal into a line-oriented partial file. The
// first line holds the session info, each following line one entry. Every
// line is synced before Append returns.
type Appender struct {
	fs     afero.Fs
	path   string
	file   afero.File
	writer *bufio.Writer
	mu     sync.Mutex
	count  int
}

// NewAppender creates the partial file for a journal that will be saved at
// journalPath. An existing partial file is the record of an interrupted run
// and is never overwritten.
func NewAppender(fs afero.Fs, journalPath string, meta Meta) (*Appender, error) {
	path := PartialPath(journalPath)
	file, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errs.Wrap(errs.ErrSetup, "journal", "partial",
				fmt.Sprintf("%s is left from an interrupted run, undo it or remove it", path), err)
		}
		return nil, errs.Wrap(errs.ErrSetup, "journal", "partial", path, err)
	}

	a := &Appender{fs: fs, path: path, file: file, writer: bufio.NewWriter(file)}
	if err := a.writeLine(encodeInfo(meta, 0)); err != nil {
		file.Close()
		_ = fs.Remove(path)
		return nil, errs.Wrap(errs.ErrSetup, "journal", "partial", path, err)
	}
	return a, nil
}

func (a *Appender) Path() string {
	return a.path
}

func (a *Appender) Append(e Entry) error {
	if e.Simulated {
		return ErrSimulated
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writeLine(encodeEntry(e)); err != nil {
		return err
	}
	a.count++
	return nil
}

func (a *Appender) writeLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := a.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := a.writer.Flush(); err != nil {
		return err
	}
	return a.file.Sync()
}

// Close closes the partial file. With done set the full journal has been
// saved and the partial file is removed; otherwise it stays for recovery.
func (a *Appender) Close(done bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writer.Flush(); err != nil {
		a.file.Close()
		return err
	}
	if err := a.file.Close(); err != nil {
		return err
	}
	if done {
		return a.fs.Remove(a.path)
	}
	return nil
}

// LoadPartial rebuilds a journal from a partial file. A last line without
// its newline was cut short by a crash and is dropped; a bad line anywhere
// else is a format error.
func LoadPartial(fs afero.Fs, path string) (*Journal, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "journal", "load partial", path, err)
	}
	j, err := parsePartial(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "journal", "load partial", path, err)
	}
	return j, nil
}

func parsePartial(data []byte) (*Journal, error) {
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		data = data[:i+1]
	}
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	if len(lines) == 0 || len(bytes.TrimSpace(lines[0])) == 0 {
		return nil, fmt.Errorf("%w: empty partial journal", ErrFormat)
	}

	var info sessionInfo
	if err := json.Unmarshal(lines[0], &info); err != nil {
		return nil, fmt.Errorf("%w: session line: %v", ErrFormat, err)
	}
	meta, err := decodeInfo(info)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(lines)-1)
	for i, line := range lines[1:] {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var raw rawOperation
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, i+2, err)
		}
		e, err := decodeEntry(i, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	j := New(meta)
	j.restore(entries)
	return j, nil
}
