package bubbletea

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/chatbox"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders the failure recorded on an assistant message.
type ErrorBlock struct {
	err    chatbox.MessageError
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(err chatbox.MessageError, styles Styles) *ErrorBlock {
	return &ErrorBlock{err: err, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	label := "Error"
	switch b.err.Kind {
	case chatbox.ErrorKindConfiguration:
		label = "Configuration error"
	case chatbox.ErrorKindProvider:
		label = "Provider error"
	case chatbox.ErrorKindNetwork:
		label = "Network error"
	}
	content := b.styles.Error.Render(fmt.Sprintf("%s: %s", label, b.err.Message))
	return lipgloss.NewStyle().Width(width).Render(content)
}
