package internal

import (
	"fmt"
	"strings"
)

// OperationMode is the filesystem effect applied to each classified file.
type OperationMode string

const (
	ModeMove OperationMode = "move"
	ModeCopy OperationMode = "copy"
)

func (m OperationMode) Valid() bool {
	return m == ModeMove || m == ModeCopy
}

// ParseOperationMode accepts "move" or "copy" in any case.
func ParseOperationMode(s string) (OperationMode, error) {
	m := OperationMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return m, nil
}
