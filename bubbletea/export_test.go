package bubbletea

import tea "github.com/charmbracelet/bubbletea"

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// Blocks exports the current block list for testing.
func Blocks(m Model) []MessageBlock {
	return m.blocks
}

// SubscriptionClosed is delivered when the store ends the subscription.
var SubscriptionClosed tea.Msg = subscriptionClosedMsg{}
