package store

import (
	"fmt"
	"strings"
)

const fieldSeparator = "----"

// ParseLine parses one account line. Two layouts are accepted:
//
//	email----password----client_id----refresh_token   (current, 4+ fields)
//	email----refresh_token                            (legacy, 2 fields)
//
// Extra fields beyond the fourth are ignored. Comment and blank lines are
// not this function's concern; callers skip them.
func ParseLine(line string) (Account, error) {
	parts := strings.Split(line, fieldSeparator)
	switch {
	case len(parts) >= 4:
		return Account{
			Email:        strings.TrimSpace(parts[0]),
			Password:     strings.TrimSpace(parts[1]),
			ClientID:     strings.TrimSpace(parts[2]),
			RefreshToken: strings.TrimSpace(parts[3]),
		}, nil
	case len(parts) == 2:
		return Account{
			Email:        strings.TrimSpace(parts[0]),
			RefreshToken: strings.TrimSpace(parts[1]),
		}, nil
	default:
		return Account{}, fmt.Errorf("invalid format: %s", line)
	}
}

// ParseResult is the outcome of parsing pasted import text.
type ParseResult struct {
	Accounts    []Account `json:"accounts"`
	ParsedCount int       `json:"parsed_count"`
	ErrorCount  int       `json:"error_count"`
	Errors      []string  `json:"errors"`
}

// ParseImportText parses pasted account text into records. Legacy two-field
// lines get the default client ID filled in so the caller sees complete
// records. Lines that parse to neither layout are reported per line, and
// never abort the batch.
func ParseImportText(text, defaultClientID string) ParseResult {
	result := ParseResult{
		Accounts: []Account{},
		Errors:   []string{},
	}

	for lineNum, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		account, err := ParseLine(line)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum+1, err))
			continue
		}
		if account.ClientID == "" {
			account.ClientID = defaultClientID
		}
		result.Accounts = append(result.Accounts, account)
	}

	result.ParsedCount = len(result.Accounts)
	result.ErrorCount = len(result.Errors)
	return result
}
