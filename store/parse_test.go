package store

import (
	"strings"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected Account
		wantErr  bool
	}{
		{
			name: "four fields",
			line: "a@outlook.com----pass123----client-1----refresh-1",
			expected: Account{
				Email:        "a@outlook.com",
				Password:     "pass123",
				ClientID:     "client-1",
				RefreshToken: "refresh-1",
			},
		},
		{
			name: "extra fields ignored",
			line: "a@outlook.com----pass----client----refresh----junk----more",
			expected: Account{
				Email:        "a@outlook.com",
				Password:     "pass",
				ClientID:     "client",
				RefreshToken: "refresh",
			},
		},
		{
			name: "legacy two fields",
			line: "a@outlook.com----refresh-1",
			expected: Account{
				Email:        "a@outlook.com",
				RefreshToken: "refresh-1",
			},
		},
		{
			name: "fields get trimmed",
			line: " a@outlook.com ---- pass ---- client ---- refresh ",
			expected: Account{
				Email:        "a@outlook.com",
				Password:     "pass",
				ClientID:     "client",
				RefreshToken: "refresh",
			},
		},
		{
			name:    "three fields is invalid",
			line:    "a@outlook.com----pass----refresh",
			wantErr: true,
		},
		{
			name:    "single field is invalid",
			line:    "a@outlook.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLine(%q) expected error, got %+v", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q) unexpected error: %v", tt.line, err)
			}
			if got != tt.expected {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.expected)
			}
		})
	}
}

func TestParseImportText(t *testing.T) {
	text := `
# pasted from a spreadsheet
a@outlook.com----passA----client-a----refresh-a

b@outlook.com----refresh-b
broken line without separators
c@outlook.com----passC----refresh-c
`

	result := ParseImportText(text, "default-client")

	if result.ParsedCount != 2 {
		t.Fatalf("Expected 2 parsed accounts, got %d: %+v", result.ParsedCount, result.Accounts)
	}
	if result.ErrorCount != 2 {
		t.Fatalf("Expected 2 errors, got %d: %v", result.ErrorCount, result.Errors)
	}

	if result.Accounts[0].ClientID != "client-a" {
		t.Errorf("Expected explicit client ID to survive, got %q", result.Accounts[0].ClientID)
	}
	// Legacy lines get the default client ID filled in
	if result.Accounts[1].Email != "b@outlook.com" || result.Accounts[1].ClientID != "default-client" {
		t.Errorf("Expected legacy line completed with default client, got %+v", result.Accounts[1])
	}

	// Errors name their line numbers
	for _, e := range result.Errors {
		if !strings.Contains(e, "line ") {
			t.Errorf("Expected error to name its line, got %q", e)
		}
	}
}

func TestParseImportTextEmpty(t *testing.T) {
	result := ParseImportText("\n# only comments\n\n", "default-client")
	if result.ParsedCount != 0 || result.ErrorCount != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
	if result.Accounts == nil || result.Errors == nil {
		t.Error("Expected non-nil slices for JSON rendering")
	}
}
