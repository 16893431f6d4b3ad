package helpers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string, extending time.ParseDuration with a
// "d" suffix for days (e.g. "14d", "30d"). Days are converted to hours before
// parsing, so fractional values like "1.5d" work as well.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if strings.HasSuffix(trimmed, "d") {
		value := strings.TrimSuffix(trimmed, "d")
		days, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(days * 24 * float64(time.Hour)), nil
	}

	return time.ParseDuration(trimmed)
}
