package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown converts assistant replies into HTML for the chat bubbles. Raw
// HTML in the source and dangerous link targets are dropped.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// HTML renders source. On the rare conversion error it returns "" and the
// widget falls back to the plain content.
func (m *Markdown) HTML(source string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return ""
	}
	return buf.String()
}
