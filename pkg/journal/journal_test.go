package journal

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
)

func testMeta() Meta {
	return Meta{
		RunID:      "4f1c2a7e-0000-4000-8000-000000000001",
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceRoot: "/src",
		DestRoot:   "/dst",
		Mode:       internal.ModeMove,
	}
}

func entry(src, dst string, op internal.OperationMode) Entry {
	return Entry{
		Op:          op,
		Source:      src,
		Destination: dst,
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 1, 123456789, time.UTC),
		Category:    "Images",
	}
}

func TestAppendRejectsSimulatedAndDuplicates(t *testing.T) {
	j := New(testMeta())
	assert.Equal(t, FormatVersion, j.Version)

	require.NoError(t, j.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))

	sim := entry("/src/b.jpg", "/dst/Images/b.jpg", internal.ModeMove)
	sim.Simulated = true
	assert.ErrorIs(t, j.Append(sim), ErrSimulated)

	err := j.Append(entry("/src/c.jpg", "/dst/Images/a.jpg", internal.ModeMove))
	assert.ErrorIs(t, err, ErrDuplicateTarget)
	assert.Equal(t, 1, j.Len())
}

func TestEntriesIsACopy(t *testing.T) {
	j := New(testMeta())
	require.NoError(t, j.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))

	got := j.Entries()
	got[0].Source = "changed"
	assert.Equal(t, "/src/a.jpg", j.Entries()[0].Source)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := New(testMeta())
	require.NoError(t, j.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))
	c := entry("/src/b.txt", "/dst/Documents/b.txt", internal.ModeCopy)
	c.Category = "Documents"
	c.Checksum = "deadbeefdeadbeef"
	require.NoError(t, j.Append(c))

	require.NoError(t, Save(fs, j, "/logs/run.json"))

	// no temp files are left behind
	infos, err := afero.ReadDir(fs, "/logs")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "run.json", infos[0].Name())

	got, err := Load(fs, "/logs/run.json")
	require.NoError(t, err)
	assert.Equal(t, j.RunID, got.RunID)
	assert.True(t, j.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, j.SourceRoot, got.SourceRoot)
	assert.Equal(t, j.DestRoot, got.DestRoot)
	assert.Equal(t, j.Mode, got.Mode)

	want := j.Entries()
	have := got.Entries()
	require.Len(t, have, len(want))
	for i := range want {
		assert.Equal(t, want[i].Op, have[i].Op)
		assert.Equal(t, want[i].Source, have[i].Source)
		assert.Equal(t, want[i].Destination, have[i].Destination)
		assert.Equal(t, want[i].Category, have[i].Category)
		assert.Equal(t, want[i].Checksum, have[i].Checksum)
		assert.True(t, want[i].Timestamp.Equal(have[i].Timestamp), "entry %d timestamp", i)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run.json", []byte("old"), 0o644))

	j := New(testMeta())
	require.NoError(t, Save(fs, j, "/run.json"))

	got, err := Load(fs, "/run.json")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestUnmarshalOriginalToolLog(t *testing.T) {
	doc := `{
  "session_info": {"timestamp": "2024-02-10T09:30:15.123456", "total_operations": 2},
  "operations": [
    {"timestamp": "2024-02-10T09:30:15.100000", "operation": "move",
     "source": "/home/u/Downloads/a.jpg", "destination": "/home/u/Downloads/organized/Images/a.jpg",
     "category": "Images"},
    {"timestamp": "2024-02-10T09:30:15", "operation": "copy",
     "source": "/home/u/Downloads/b.pdf", "destination": "/home/u/Downloads/organized/Documents/b.pdf",
     "category": "Documents"}
  ]
}`
	j, err := Unmarshal([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, j.Len())

	entries := j.Entries()
	assert.Equal(t, internal.ModeMove, entries[0].Op)
	assert.Equal(t, internal.ModeCopy, entries[1].Op)
	assert.Equal(t, 2024, j.CreatedAt.Year())
	assert.Equal(t, 15, entries[1].Timestamp.Second())
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"operations": [`},
		{"missing operations", `{"session_info": {"total_operations": 0}}`},
		{"missing source", `{"operations": [{"timestamp": "2024-01-01T00:00:00Z", "operation": "move", "destination": "/d"}]}`},
		{"missing destination", `{"operations": [{"timestamp": "2024-01-01T00:00:00Z", "operation": "move", "source": "/s"}]}`},
		{"missing operation", `{"operations": [{"timestamp": "2024-01-01T00:00:00Z", "source": "/s", "destination": "/d"}]}`},
		{"missing timestamp", `{"operations": [{"operation": "move", "source": "/s", "destination": "/d"}]}`},
		{"unknown operation", `{"operations": [{"timestamp": "2024-01-01T00:00:00Z", "operation": "link", "source": "/s", "destination": "/d"}]}`},
		{"bad timestamp", `{"operations": [{"timestamp": "yesterday", "operation": "move", "source": "/s", "destination": "/d"}]}`},
		{"future version", `{"session_info": {"version": 99}, "operations": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestLoadErrorsAreSetupErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/missing.json")
	assert.ErrorIs(t, err, errs.ErrSetup)

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte("{"), 0o644))
	_, err = Load(fs, "/bad.json")
	assert.ErrorIs(t, err, errs.ErrSetup)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestAppenderWritesAndRemovesPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := NewAppender(fs, "/run.json", testMeta())
	require.NoError(t, err)
	assert.Equal(t, "/run.json.partial", a.Path())

	require.NoError(t, a.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))
	require.NoError(t, a.Append(entry("/src/b.jpg", "/dst/Images/b.jpg", internal.ModeMove)))

	j, err := LoadPartial(fs, a.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, j.Len())
	assert.Equal(t, "/dst", j.DestRoot)

	require.NoError(t, a.Close(true))
	ok, err := afero.Exists(fs, "/run.json.partial")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppenderKeepsPartialWhenNotDone(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := NewAppender(fs, "/run.json", testMeta())
	require.NoError(t, err)
	require.NoError(t, a.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))
	require.NoError(t, a.Close(false))

	ok, err := afero.Exists(fs, "/run.json.partial")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewAppender(fs, "/run.json", testMeta())
	assert.ErrorIs(t, err, errs.ErrSetup)
}

func TestLoadPartialDropsTruncatedTail(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := NewAppender(fs, "/run.json", testMeta())
	require.NoError(t, err)
	require.NoError(t, a.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))
	require.NoError(t, a.Close(false))

	f, err := fs.OpenFile("/run.json.partial", os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2024-03-01T12:00:02Z","operation":"mo`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j, err := LoadPartial(fs, "/run.json.partial")
	require.NoError(t, err)
	assert.Equal(t, 1, j.Len())
}

func TestLoadPartialRejectsCorruptMiddleLine(t *testing.T) {
	data := []byte(`{"total_operations":0,"dry_run":false}
not json
{"timestamp":"2024-03-01T12:00:02Z","operation":"move","source":"/s","destination":"/d"}
`)
	_, err := parsePartial(data)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestOpenFallsBackToPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	a, err := NewAppender(fs, "/run.json", testMeta())
	require.NoError(t, err)
	require.NoError(t, a.Append(entry("/src/a.jpg", "/dst/Images/a.jpg", internal.ModeMove)))
	require.NoError(t, a.Close(false))

	j, partial, err := Open(fs, "/run.json")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.Equal(t, 1, j.Len())

	_, _, err = Open(fs, "/other.json")
	assert.ErrorIs(t, err, errs.ErrSetup)
}
