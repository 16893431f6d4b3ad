package store

import (
	"strings"
	"time"

	"github.com/hatomail/hato/consts"
)

// defaultFileHeader is written when an account file has no comment header of
// its own.
var defaultFileHeader = []string{
	"# Mailbox account configuration",
	"# Format: email----password----client_id----refresh_token",
	"# One account per line, fields separated by ----",
	"",
}

// renderLine formats one account record. An empty client ID renders as the
// configured default so the file stays importable by tools that expect four
// fields.
func renderLine(account Account, defaultClientID string) string {
	clientID := account.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}
	return account.Email + fieldSeparator + account.Password + fieldSeparator +
		clientID + fieldSeparator + account.RefreshToken
}

// RenderAccountsFile renders the account file body with the given comment
// header, or the default header when none is supplied.
func RenderAccountsFile(accounts []Account, defaultClientID string, header []string) string {
	if len(header) == 0 {
		header = defaultFileHeader
	}

	lines := make([]string, 0, len(header)+len(accounts))
	lines = append(lines, header...)
	for _, account := range accounts {
		lines = append(lines, renderLine(account, defaultClientID))
	}
	return strings.Join(lines, "\n") + "\n"
}

// RenderAdminExport renders the full-credential export with a timestamped
// header warning about the sensitive contents.
func RenderAdminExport(accounts []Account, defaultClientID string, now time.Time) string {
	header := []string{
		"# Mailbox account export",
		"# Exported at: " + now.Format(consts.DateDisplayFormat),
		"# Format: email----password----client_id----refresh_token",
		"# Contains credentials, handle with care",
		"",
	}
	return RenderAccountsFile(accounts, defaultClientID, header)
}

// JSONExport is the JSON export payload.
type JSONExport struct {
	Accounts   []Account `json:"accounts"`
	ExportedAt string    `json:"exported_at"`
	TotalCount int       `json:"total_count"`
}

// ExportJSON builds the JSON export payload. Records with an empty client ID
// are completed with the default so consumers always see four fields.
func ExportJSON(accounts []Account, defaultClientID string, now time.Time) JSONExport {
	out := make([]Account, len(accounts))
	for i, account := range accounts {
		out[i] = account
		if out[i].ClientID == "" {
			out[i].ClientID = defaultClientID
		}
	}
	return JSONExport{
		Accounts:   out,
		ExportedAt: now.Format(time.RFC3339),
		TotalCount: len(out),
	}
}
