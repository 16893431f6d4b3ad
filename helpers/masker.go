package helpers

import "strings"

// MaskToken redacts a credential for logging, keeping just enough of the
// head and tail to correlate log lines with stored values.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
