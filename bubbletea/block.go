package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// MessageBlock renders one piece of a session transcript. Blocks are rebuilt
// from store snapshots; View receives the viewport width from the model.
type MessageBlock interface {
	Update(tea.Msg) (MessageBlock, tea.Cmd)
	View(width int) string
}

// ToggleMsg asks a collapsible block to expand or collapse.
type ToggleMsg struct{}
