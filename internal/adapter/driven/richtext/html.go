// Package richtext converts the markdown bodies callers send into the
// formats providers expect: sanitized HTML for email and block trees for
// Notion pages.
package richtext

import (
	"bytes"
	stdhtml "html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// HTML converts markdown to sanitized HTML. Returns "" for empty input.
func HTML(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// SanitizeHTML strips scripts, event handlers and other unsafe markup from
// caller-supplied HTML.
func SanitizeHTML(src string) string {
	return htmlSanitizer.Sanitize(src)
}

// PlainText returns the text content of an HTML fragment, for the
// text/plain alternative of a message.
func PlainText(src string) string {
	text := bluemonday.StrictPolicy().Sanitize(src)
	return strings.TrimSpace(stdhtml.UnescapeString(text))
}
