package bubbletea

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chatbox"
)

var _ MessageBlock = (*UserMessageBlock)(nil)

// UserMessageBlock renders a user message with a "> " prefix followed by
// the names of its attachments.
type UserMessageBlock struct {
	text        string
	attachments []string
	styles      Styles
}

// NewUserMessageBlock creates a block for msg.
func NewUserMessageBlock(msg chatbox.Message, styles Styles) *UserMessageBlock {
	b := &UserMessageBlock{text: msg.Text(), styles: styles}
	for _, c := range msg.Content {
		switch c := c.(type) {
		case chatbox.FileBlock:
			b.attachments = append(b.attachments, c.Name)
		case chatbox.ImageBlock:
			b.attachments = append(b.attachments, "image ("+c.MimeType+")")
		}
	}
	return b
}

func (b *UserMessageBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserMessageBlock) View(width int) string {
	content := b.styles.UserMsg.Render("> ") + b.text
	if len(b.attachments) > 0 {
		content += "\n" + b.styles.Muted.Render("attached: "+strings.Join(b.attachments, ", "))
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}
