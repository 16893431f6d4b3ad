package helpers

import (
	"strings"
	"unicode/utf8"
)

// SanitizeUTF8 replaces invalid UTF-8 sequences with the replacement rune and
// strips NULL bytes. Header and body values fetched from remote servers are
// passed through here before they are returned as JSON.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, '\x00') {
		return s
	}

	buf := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\x00' {
			continue
		}
		buf = append(buf, r)
	}
	return string(buf)
}
