package agent

import (
	"strings"

	"github.com/fwojciec/chatbox"
)

// BuildRequest assembles the provider request that replies to the last user
// message in history.
//
// Messages after that user message, generating messages and assistant turns
// without content are left out. When MaxContextMessages is set only that
// many of the most recent conversation messages are sent; system messages
// are always kept. Providers that do not accept a system instruction receive
// the system prompt and system messages as leading user text.
func BuildRequest(settings chatbox.SessionSettings, history []chatbox.Message, caps chatbox.Capabilities) chatbox.Request {
	settings = settings.Clone()
	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chatbox.RoleUser {
			lastUser = i
			break
		}
	}
	history = history[:lastUser+1]

	var system, convo []chatbox.Message
	for _, m := range history {
		switch {
		case m.Generating:
		case m.Role == chatbox.RoleSystem:
			system = append(system, m.Clone())
		case m.Role == chatbox.RoleAssistant && len(m.Content) == 0:
		default:
			convo = append(convo, m.Clone())
		}
	}
	if n := settings.MaxContextMessages; n > 0 && len(convo) > n {
		convo = convo[len(convo)-n:]
	}
	// Conversations must open with a user turn.
	for len(convo) > 0 && convo[0].Role != chatbox.RoleUser {
		convo = convo[1:]
	}

	req := chatbox.Request{
		Model:          settings.ModelID,
		MaxTokens:      settings.MaxTokens,
		Temperature:    settings.Temperature,
		TopP:           settings.TopP,
		ThinkingBudget: settings.ThinkingBudget,
	}
	if caps.SystemMessage {
		req.SystemPrompt = settings.SystemPrompt
		req.Messages = append(system, convo...)
		return req
	}

	var lead []string
	if settings.SystemPrompt != "" {
		lead = append(lead, settings.SystemPrompt)
	}
	for _, m := range system {
		if t := m.Text(); t != "" {
			lead = append(lead, t)
		}
	}
	if len(lead) > 0 {
		req.Messages = append(req.Messages, chatbox.NewMessage(chatbox.RoleUser, strings.Join(lead, "\n\n")))
	}
	req.Messages = append(req.Messages, convo...)
	return req
}
