package bubbletea

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chatbox"
)

var _ MessageBlock = (*MediaBlock)(nil)

// MediaBlock stands in for generated images and referenced files, which a
// terminal cannot display inline.
type MediaBlock struct {
	label  string
	styles Styles
}

// NewMediaBlock describes block, which must be an ImageBlock or FileBlock.
func NewMediaBlock(block chatbox.ContentBlock, styles Styles) *MediaBlock {
	var label string
	switch c := block.(type) {
	case chatbox.ImageBlock:
		switch {
		case c.StorageKey != "":
			label = fmt.Sprintf("[image %s: %s]", c.MimeType, c.StorageKey)
		default:
			label = fmt.Sprintf("[image %s, %d bytes]", c.MimeType, len(c.Data))
		}
	case chatbox.FileBlock:
		label = fmt.Sprintf("[file %s: %s]", c.Name, c.URI)
	}
	return &MediaBlock{label: label, styles: styles}
}

func (b *MediaBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *MediaBlock) View(width int) string {
	return lipgloss.NewStyle().Width(width).Render(b.styles.Accent.Render(b.label))
}
