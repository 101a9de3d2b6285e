package internal

const (
	// DefaultDestDir is used when neither --dest nor organize.dest is set.
	DefaultDestDir = "organized"

	// DefaultSettingsDir holds config.yaml.
	DefaultSettingsDir = "~/.file-organizer"

	// LockFileName is created inside the destination root during live runs.
	LockFileName = ".file-organizer.lock"

	// PartialSuffix is appended to the --save-log path for the in-flight journal.
	PartialSuffix = ".partial"

	// FallbackCategory receives every file no rule claims.
	FallbackCategory = "Other"

	// SniffBufferSize is how much of a file is read for content detection.
	SniffBufferSize = 8192
)
