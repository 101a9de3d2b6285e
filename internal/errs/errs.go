// Package errs tags failures with the kind that decides their blast radius.
//
// Setup and config errors abort a run before anything is touched. Transfer
// and undo errors cost one file or one journal entry; the run goes on and the
// summary counts them.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSetup    = errors.New("setup error")
	ErrConfig   = errors.New("configuration error")
	ErrTransfer = errors.New("transfer error")
	ErrUndo     = errors.New("undo error")
)

// Wrap builds "<kind>: <component>: <op>: <message>: <cause>" while keeping
// both the kind marker and the cause reachable through errors.Is/As.
func Wrap(kind error, component, op, message string, cause error) error {
	if kind == nil {
		kind = ErrTransfer
	}
	detail := buildDetail(component, op, message)
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", kind, detail, cause)
	}
	return fmt.Errorf("%w: %s", kind, detail)
}

// Fatal reports whether err must stop the whole run.
func Fatal(err error) bool {
	return errors.Is(err, ErrSetup) || errors.Is(err, ErrConfig)
}

// Kind returns the marker carried by err, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrSetup, ErrConfig, ErrTransfer, ErrUndo} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func buildDetail(component, op, message string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{component, op, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
