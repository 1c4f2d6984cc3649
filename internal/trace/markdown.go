// ABOUTME: Renders message markdown to HTML for transcript export
// ABOUTME: Thin wrapper over goldmark with a plain-text fallback

package trace

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
)

// RenderMarkdown converts message content to an HTML fragment. On conversion
// failure the content is returned escaped inside a pre block so the export
// never loses text.
func RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "<pre>" + html.EscapeString(content) + "</pre>"
	}
	return buf.String()
}
