package classifier

import (
	"path/filepath"
	"strings"

	"github.com/moyu-x/file-organizer/internal"
)

// Classify returns the category for a file name. Every dot-delimited suffix
// is tried, longest first, so "backup.tar.gz" matches ".tar.gz" before ".gz".
// A leading dot (hidden files) does not start a suffix.
func (r *RuleSet) Classify(name string) string {
	lower := strings.ToLower(filepath.Base(name))
	for i := 1; i < len(lower); i++ {
		if lower[i] != '.' {
			continue
		}
		if cat, ok := r.index[lower[i:]]; ok {
			return cat
		}
	}
	return internal.FallbackCategory
}

func Classify(name string, rules *RuleSet) string {
	return rules.Classify(name)
}
