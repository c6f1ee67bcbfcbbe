// Package reportid derives stable report identifiers from file paths.
package reportid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const fallbackPrefix = "report-"

// FromPath returns the file base name without its extension, sanitized.
// The same path always yields the same ID, so re-ingesting a file replaces its chunks.
// Names that sanitize to nothing fall back to a hash of the cleaned path.
func FromPath(path string) string {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	if id := Sanitize(strings.TrimSuffix(base, filepath.Ext(base))); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(clean))
	return fallbackPrefix + hex.EncodeToString(sum[:])[:12]
}

// Sanitize keeps letters, digits, '-', '_' and '.'; whitespace becomes '_' and
// everything else is dropped. Leading and trailing dots are trimmed.
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

// New returns a random ID for reports submitted without one.
func New() string {
	return uuid.New().String()
}
