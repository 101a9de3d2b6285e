package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps the CLI level names onto zerolog levels.
// "warning" is accepted as an alias of "warn".
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q (want debug, info, warning or error)", level)
	}
}

// New builds a console logger writing to out, and also to file when one is
// given. The returned close func releases the log file.
func New(level, file string, out io.Writer) (zerolog.Logger, func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), noop, err
	}
	if out == nil {
		out = os.Stdout
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	closeFn := noop

	if file != "" {
		fileWriter, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), noop, fmt.Errorf("open log file: %w", err)
		}
		// the file gets plain JSON lines, the console keeps the pretty format
		output = zerolog.MultiLevelWriter(output, fileWriter)
		closeFn = fileWriter.Close
	}

	logger := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	return logger, closeFn, nil
}

// Component derives a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func noop() error { return nil }
