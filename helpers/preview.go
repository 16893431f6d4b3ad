package helpers

import (
	"strings"

	"github.com/k3a/html2text"
)

// PreviewText renders a short plain-text snippet from a message body. HTML
// bodies are converted to text first; whitespace runs are collapsed and the
// result is truncated to max runes.
func PreviewText(content, contentType string, max int) string {
	if contentType == "html" {
		content = html2text.HTML2Text(content)
	}
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) > max {
		return string(runes[:max])
	}
	return content
}
