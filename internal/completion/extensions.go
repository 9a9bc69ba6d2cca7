package completion

import (
	"path/filepath"
	"strings"
)

// ExtensionFilter matches file extensions case-insensitively. Entries carry
// the leading dot.
type ExtensionFilter map[string]struct{}

// NewExtensionFilter builds a filter from the [watch] extensions list.
func NewExtensionFilter(exts []string) ExtensionFilter {
	f := make(ExtensionFilter, len(exts))
	for _, ext := range exts {
		f[strings.ToLower(ext)] = struct{}{}
	}
	return f
}

// Allowed reports whether path ends in one of the filter's extensions.
func (f ExtensionFilter) Allowed(path string) bool {
	_, ok := f[strings.ToLower(filepath.Ext(path))]
	return ok
}
