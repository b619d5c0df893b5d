// Package markdown renders assistant replies to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling.
package markdown

import (
	"github.com/fwojciec/chatbox"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Renderer converts markdown to styled text. It is safe for concurrent use.
type Renderer struct {
	parser parser.Parser
	styles styles
}

// New returns a Renderer using theme colors. GitHub-flavored extensions
// (tables, strikethrough, task lists, bare links) are enabled.
func New(theme chatbox.Theme) *Renderer {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return &Renderer{parser: md.Parser(), styles: newStyles(theme)}
}

// Render parses source and returns styled output. Paragraphs and list items
// are word-wrapped to width; code blocks and tables keep their line
// structure.
func (r *Renderer) Render(source string, width int) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	return r.render([]byte(source), width)
}

// Render is a convenience wrapper around New(theme).Render.
func Render(source string, width int, theme chatbox.Theme) string {
	return New(theme).Render(source, width)
}
