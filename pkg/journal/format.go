package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/moyu-x/file-organizer/internal"
)

// The on-disk layout keeps the "session_info"/"operations" shape of the
// original organizer logs so those still load.

type sessionInfo struct {
	Version         int    `json:"version,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	TotalOperations int    `json:"total_operations"`
	SourceRoot      string `json:"source_root,omitempty"`
	DestRoot        string `json:"destination_root,omitempty"`
	Mode            string `json:"mode,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

type operation struct {
	Timestamp   string `json:"timestamp"`
	Operation   string `json:"operation"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Category    string `json:"category,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

// rawOperation uses pointers so missing fields can be told from empty ones.
type rawOperation struct {
	Timestamp   *string `json:"timestamp"`
	Operation   *string `json:"operation"`
	Source      *string `json:"source"`
	Destination *string `json:"destination"`
	Category    string  `json:"category"`
	Checksum    string  `json:"checksum"`
}

type document struct {
	SessionInfo sessionInfo `json:"session_info"`
	Operations  []operation `json:"operations"`
}

type rawDocument struct {
	SessionInfo *sessionInfo    `json:"session_info"`
	Operations  *[]rawOperation `json:"operations"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	// written by the original tool: local time, no zone
	"2006-01-02T15:04:05.999999999",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func encodeInfo(m Meta, total int) sessionInfo {
	info := sessionInfo{
		Version:         m.Version,
		RunID:           m.RunID,
		TotalOperations: total,
		SourceRoot:      m.SourceRoot,
		DestRoot:        m.DestRoot,
		Mode:            string(m.Mode),
		DryRun:          m.DryRun,
	}
	if !m.CreatedAt.IsZero() {
		info.Timestamp = formatTime(m.CreatedAt)
	}
	return info
}

func decodeInfo(info sessionInfo) (Meta, error) {
	m := Meta{
		Version:    info.Version,
		RunID:      info.RunID,
		SourceRoot: info.SourceRoot,
		DestRoot:   info.DestRoot,
		Mode:       internal.OperationMode(info.Mode),
		DryRun:     info.DryRun,
	}
	if info.Timestamp != "" {
		t, err := parseTime(info.Timestamp)
		if err != nil {
			return Meta{}, fmt.Errorf("%w: session timestamp: %v", ErrFormat, err)
		}
		m.CreatedAt = t
	}
	if m.Version > FormatVersion {
		return Meta{}, fmt.Errorf("%w: version %d is newer than supported %d", ErrFormat, m.Version, FormatVersion)
	}
	return m, nil
}

func encodeEntry(e Entry) operation {
	return operation{
		Timestamp:   formatTime(e.Timestamp),
		Operation:   string(e.Op),
		Source:      e.Source,
		Destination: e.Destination,
		Category:    e.Category,
		Checksum:    e.Checksum,
	}
}

func decodeEntry(i int, raw rawOperation) (Entry, error) {
	missing := func(field string) error {
		return fmt.Errorf("%w: operation %d: missing %q", ErrFormat, i, field)
	}
	switch {
	case raw.Operation == nil:
		return Entry{}, missing("operation")
	case raw.Source == nil || *raw.Source == "":
		return Entry{}, missing("source")
	case raw.Destination == nil || *raw.Destination == "":
		return Entry{}, missing("destination")
	case raw.Timestamp == nil:
		return Entry{}, missing("timestamp")
	}

	op := internal.OperationMode(*raw.Operation)
	if !op.Valid() {
		return Entry{}, fmt.Errorf("%w: operation %d: unknown operation %q", ErrFormat, i, *raw.Operation)
	}
	ts, err := parseTime(*raw.Timestamp)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: operation %d: timestamp: %v", ErrFormat, i, err)
	}

	return Entry{
		Op:          op,
		Source:      *raw.Source,
		Destination: *raw.Destination,
		Timestamp:   ts,
		Category:    raw.Category,
		Checksum:    raw.Checksum,
	}, nil
}

// Marshal renders j as an indented JSON document.
func Marshal(j *Journal) ([]byte, error) {
	doc := document{
		SessionInfo: encodeInfo(j.Meta, j.Len()),
		Operations:  make([]operation, 0, j.Len()),
	}
	for _, e := range j.entries {
		doc.Operations = append(doc.Operations, encodeEntry(e))
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal parses a journal document. It checks structure only; whether the
// referenced paths exist is for undo to find out.
func Unmarshal(data []byte) (*Journal, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if raw.Operations == nil {
		return nil, fmt.Errorf("%w: missing \"operations\"", ErrFormat)
	}

	var meta Meta
	if raw.SessionInfo != nil {
		var err error
		if meta, err = decodeInfo(*raw.SessionInfo); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(*raw.Operations))
	for i, op := range *raw.Operations {
		e, err := decodeEntry(i, op)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	j := New(meta)
	j.restore(entries)
	return j, nil
}
