// Package journal records the transfers of one run so they can be undone.
//
// A Journal is created empty at run start and receives one Entry per
// completed live transfer, in order. It is written with Save when the user
// asks for it, and read back with Load by the undo command; undo always works
// on a fresh copy, never on the instance the run appended to. While a run is
// in flight an Appender mirrors every entry into "<path>.partial" so that a
// crash leaves a readable record of what already happened.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/moyu-x/file-organizer/internal"
)

// FormatVersion is written into every saved document.
const FormatVersion = 1

var (
	ErrFormat          = errors.New("malformed journal")
	ErrSimulated       = errors.New("simulated entries are not journaled")
	ErrDuplicateTarget = errors.New("destination already journaled")
)

type Entry struct {
	Op          internal.OperationMode
	Source      string
	Destination string
	Timestamp   time.Time
	Category    string
	Checksum    string
	// Simulated marks dry-run entries; they never reach a journal.
	Simulated bool
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s -> %s", e.Op, e.Source, e.Destination)
}

// Meta describes the run that produced a journal.
type Meta struct {
	Version    int
	RunID      string
	CreatedAt  time.Time
	SourceRoot string
	DestRoot   string
	Mode       internal.OperationMode
	DryRun     bool
}

type Journal struct {
	Meta
	entries []Entry
	dests   map[string]struct{}
}

func New(meta Meta) *Journal {
	if meta.Version == 0 {
		meta.Version = FormatVersion
	}
	return &Journal{Meta: meta, dests: make(map[string]struct{})}
}

// Append adds a performed transfer. Simulated entries and a destination that
// is already journaled are rejected.
func (j *Journal) Append(e Entry) error {
	if e.Simulated {
		return ErrSimulated
	}
	if _, ok := j.dests[e.Destination]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTarget, e.Destination)
	}
	j.dests[e.Destination] = struct{}{}
	j.entries = append(j.entries, e)
	return nil
}

// Entries returns the entries in the order they were performed.
func (j *Journal) Entries() []Entry {
	return append([]Entry(nil), j.entries...)
}

func (j *Journal) Len() int {
	return len(j.entries)
}

// restore bypasses the destination check: old logs may legitimately reuse a
// destination across sessions and undo must still be able to read them.
func (j *Journal) restore(entries []Entry) {
	j.entries = entries
	for _, e := range entries {
		j.dests[e.Destination] = struct{}{}
	}
}
