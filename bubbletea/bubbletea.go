// Package bubbletea provides a Bubble Tea terminal UI for a chatbox session.
//
// The UI never mutates messages itself. It renders the snapshots published
// by the session store and forwards user intents (submit, cancel, retry,
// thread changes) to the orchestrator and store.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/agent"
)

// Chat is the subset of the orchestrator the UI drives.
type Chat interface {
	Submit(ctx context.Context, sessionID, input string, attachments []chatbox.File) (*agent.Generation, error)
	Retry(ctx context.Context, sessionID string) (*agent.Generation, error)
	Cancel(sessionID string) error
}

// Interface compliance check.
var _ Chat = (*agent.Orchestrator)(nil)

// Run creates and runs the Bubble Tea program. It blocks until the program
// exits. Cancelling ctx quits the program.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	m.Close()
	return err
}

// SessionMsg delivers a new snapshot of the displayed session.
type SessionMsg struct {
	Session chatbox.Session
}

// GenerationDoneMsg signals that a submitted or retried turn has ended.
type GenerationDoneMsg struct {
	Err error
}

type subscriptionClosedMsg struct{}

func listenForSession(ch <-chan chatbox.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return SessionMsg{Session: s}
	}
}

func awaitGeneration(g *agent.Generation, err error) tea.Msg {
	if err != nil || g == nil {
		return GenerationDoneMsg{Err: err}
	}
	return GenerationDoneMsg{Err: g.Wait()}
}

func submit(chat Chat, sessionID, text string, files []chatbox.File) tea.Cmd {
	return func() tea.Msg {
		return awaitGeneration(chat.Submit(context.Background(), sessionID, text, files))
	}
}

func retry(chat Chat, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return awaitGeneration(chat.Retry(context.Background(), sessionID))
	}
}
