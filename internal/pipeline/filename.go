package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fallbackFilename replaces names that sanitize to nothing.
const fallbackFilename = "upload"

// SanitizeFilename reduces name to a safe ASCII file name: compatibility
// decomposition, non-ASCII dropped, path separators and whitespace runs
// turned into underscores, only [A-Za-z0-9_.-] kept, and leading or trailing
// dots and underscores trimmed.
func SanitizeFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		ascii.WriteRune(r)
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")
	var out strings.Builder
	for _, r := range joined {
		if r == '_' || r == '.' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	cleaned := strings.Trim(out.String(), "._")
	if cleaned == "" {
		return fallbackFilename
	}
	return cleaned
}
