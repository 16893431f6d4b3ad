package helpers

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Valid UTF-8 string",
			input:    "Hello, World!",
			expected: "Hello, World!",
		},
		{
			name:     "UTF-8 with emoji",
			input:    "Hello 👋 World 🌍",
			expected: "Hello 👋 World 🌍",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "NULL byte at start",
			input:    "\x00Hello",
			expected: "Hello",
		},
		{
			name:     "NULL byte in middle",
			input:    "Hello\x00World",
			expected: "HelloWorld",
		},
		{
			name:     "Invalid UTF-8 replaced",
			input:    "Hello\xFFWorld",
			expected: "Hello�World",
		},
		{
			name:     "Truncated multibyte sequence replaced",
			input:    "caf\xC3",
			expected: "caf�",
		},
		{
			name:     "NULL bytes and invalid UTF-8 together",
			input:    "Hello\x00\xFFWorld\x00",
			expected: "Hello�World",
		},
		{
			name:     "Header block with NULL bytes",
			input:    "Subject: Test\x00\nFrom: sender@example.com\x00",
			expected: "Subject: Test\nFrom: sender@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeUTF8(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}

			if !utf8.ValidString(result) {
				t.Errorf("Result is not valid UTF-8: %q", result)
			}
			if strings.ContainsRune(result, '\x00') {
				t.Errorf("Result still contains NULL bytes: %q", result)
			}
		})
	}
}
