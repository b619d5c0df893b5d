package bubbletea

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/markdown"
)

var _ tea.Model = Model{}

const attachCommand = "/attach "

// Model is the Bubble Tea model for one session.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	chat        Chat
	store       chatbox.SessionStore
	sessionID   string
	session     chatbox.Session
	updates     <-chan chatbox.Session
	unsubscribe func()

	theme  chatbox.Theme
	styles Styles
	md     *markdown.Renderer

	blocks     []MessageBlock
	blockFocus int // index of focused collapsible block (-1 = none)

	// Blocks survive snapshots so render caches and collapsed state are
	// kept. Keyed by message ID and content index.
	text     map[string]*AssistantTextBlock
	thinking map[string]*ThinkingBlock

	pending  []chatbox.File
	readFile func(string) ([]byte, error)

	busy     bool // a submit or retry command is in flight
	quitting bool
	err      error
	ready    bool
}

// Option configures a Model.
type Option func(*Model)

// WithTheme sets the color theme.
func WithTheme(t chatbox.Theme) Option {
	return func(m *Model) {
		m.theme = t
	}
}

// WithFileReader replaces os.ReadFile for the /attach command.
func WithFileReader(f func(string) ([]byte, error)) Option {
	return func(m *Model) {
		m.readFile = f
	}
}

// New creates a Model displaying sessionID. It subscribes to the store
// immediately; call Close when the program has exited.
func New(chat Chat, store chatbox.SessionStore, sessionID string, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:      ti,
		chat:       chat,
		store:      store,
		sessionID:  sessionID,
		theme:      chatbox.DefaultTheme(),
		blockFocus: -1,
		text:       make(map[string]*AssistantTextBlock),
		thinking:   make(map[string]*ThinkingBlock),
		readFile:   os.ReadFile,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.styles = NewStyles(m.theme)
	m.md = markdown.New(m.theme)
	m.updates, m.unsubscribe = store.Subscribe(sessionID)
	return m
}

// Close ends the store subscription. Run calls it after the program exits.
func (m Model) Close() {
	m.unsubscribe()
}

// Running reports whether a turn is in progress.
func (m Model) Running() bool {
	if m.busy {
		return true
	}
	_, ok := m.session.GeneratingMessage()
	return ok
}

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Session returns the latest snapshot received.
func (m Model) Session() chatbox.Session { return m.session }

// Pending returns the files queued for the next submission.
func (m Model) Pending() []chatbox.File { return m.pending }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForSession(m.updates))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionMsg:
		m.session = msg.Session
		m = m.rebuild()
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		return m, listenForSession(m.updates)

	case subscriptionClosedMsg:
		if m.quitting {
			return m, nil
		}
		m.err = fmt.Errorf("session %q is no longer available", m.sessionID)
		return m, nil

	case GenerationDoneMsg:
		m.busy = false
		if msg.Err != nil && !chatbox.IsCancellation(msg.Err) {
			m.err = msg.Err
		}
		return m, m.Input.Focus()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.Running() {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	const (
		inputHeight  = 1
		statusHeight = 1
		borderHeight = 2
	)
	vpHeight := max(msg.Height-inputHeight-statusHeight-borderHeight, 1)
	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.Running() {
			return m.cancel(), nil
		}
		// Run unsubscribes once the program has exited.
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.Running() {
			return m.cancel(), nil
		}
		return m, nil

	case tea.KeyEnter:
		if m.Running() {
			return m, nil
		}
		return m.submitInput(strings.TrimSpace(m.Input.Value()))

	case tea.KeyCtrlR:
		if m.Running() {
			return m, nil
		}
		m.err = nil
		m.busy = true
		m.Input.Blur()
		return m, retry(m.chat, m.sessionID)

	case tea.KeyCtrlN:
		if m.Running() {
			return m, nil
		}
		_, err := m.store.StartNewThread(m.sessionID, "")
		m.err = err
		return m, nil

	case tea.KeyCtrlB:
		if m.Running() {
			return m, nil
		}
		m.err = m.store.RollbackThread(m.sessionID)
		return m, nil

	case tea.KeyTab:
		if m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil

	case tea.KeyShiftTab:
		m = m.cycleFocusPrev()
		m.Viewport.SetContent(m.renderContent())
		return m, nil
	}

	if m.Running() {
		return m, nil
	}
	// Character keys go only to the input; 'j'/'k' would otherwise scroll.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) cancel() Model {
	if err := m.chat.Cancel(m.sessionID); err != nil {
		m.err = err
	}
	return m
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	if path, ok := strings.CutPrefix(text, attachCommand); ok {
		m.Input.SetValue("")
		return m.attach(strings.TrimSpace(path)), nil
	}
	if text == "" && len(m.pending) == 0 {
		return m, nil
	}
	files := m.pending
	m.pending = nil
	m.Input.SetValue("")
	m.err = nil
	m.busy = true
	m.Input.Blur()
	return m, submit(m.chat, m.sessionID, text, files)
}

func (m Model) attach(path string) Model {
	data, err := m.readFile(path)
	if err != nil {
		m.err = fmt.Errorf("attach: %w", err)
		return m
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	m.err = nil
	m.pending = append(m.pending, chatbox.File{Name: filepath.Base(path), MimeType: mimeType, Data: data})
	return m
}

// rebuild derives blocks from the active thread of the current snapshot.
func (m Model) rebuild() Model {
	seen := make(map[string]bool)
	m.blocks = nil
	for _, msg := range m.session.ActiveMessages() {
		switch msg.Role {
		case chatbox.RoleUser:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg, m.styles))
		case chatbox.RoleAssistant:
			for i, c := range msg.Content {
				key := fmt.Sprintf("%s/%d", msg.ID, i)
				seen[key] = true
				switch c := c.(type) {
				case chatbox.TextBlock:
					b, ok := m.text[key]
					if !ok {
						b = NewAssistantTextBlock(m.md)
						m.text[key] = b
					}
					b.SetText(c.Text)
					m.blocks = append(m.blocks, b)
				case chatbox.ThinkingBlock:
					b, ok := m.thinking[key]
					if !ok {
						b = NewThinkingBlock(m.styles)
						m.thinking[key] = b
					}
					b.SetText(c.Thinking)
					m.blocks = append(m.blocks, b)
				case chatbox.ImageBlock, chatbox.FileBlock:
					m.blocks = append(m.blocks, NewMediaBlock(c, m.styles))
				}
			}
			if msg.Error != nil {
				m.blocks = append(m.blocks, NewErrorBlock(*msg.Error, m.styles))
			}
		}
	}
	for key := range m.text {
		if !seen[key] {
			delete(m.text, key)
		}
	}
	for key := range m.thinking {
		if !seen[key] {
			delete(m.thinking, key)
		}
	}
	return m.updateBlockFocus()
}

func (m Model) renderContent() string {
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// updateBlockFocus focuses the last collapsible block.
func (m Model) updateBlockFocus() Model {
	m.blockFocus = -1
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if _, ok := m.blocks[i].(*ThinkingBlock); ok {
			m.blockFocus = i
			return m
		}
	}
	return m
}

// cycleFocusPrev moves blockFocus to the previous collapsible block,
// wrapping around.
func (m Model) cycleFocusPrev() Model {
	if len(m.blocks) == 0 {
		return m
	}
	start := m.blockFocus - 1
	if start < 0 {
		start = len(m.blocks) - 1
	}
	for i := range len(m.blocks) {
		idx := (start - i + len(m.blocks)) % len(m.blocks)
		if _, ok := m.blocks[idx].(*ThinkingBlock); ok {
			m.blockFocus = idx
			return m
		}
	}
	m.blockFocus = -1
	return m
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	model := string(m.session.Settings.Provider) + "/" + m.session.Settings.ModelID
	if m.Running() {
		state := "Requesting"
		if msg, ok := m.session.GeneratingMessage(); ok && msg.Status == chatbox.StatusStreaming {
			state = "Generating"
		}
		return m.styles.Muted.Render(fmt.Sprintf("%s... %s  Esc to cancel", state, model))
	}
	var b strings.Builder
	b.WriteString(model)
	if t, ok := m.session.ActiveThread(); ok && len(m.session.Threads) > 1 {
		b.WriteString("  " + t.Name)
	}
	if n := len(m.pending); n > 0 {
		fmt.Fprintf(&b, "  %d attached", n)
	}
	b.WriteString("  Enter to send, Ctrl+R retry, Ctrl+N new thread, Ctrl+B rollback, Ctrl+C to quit")
	return m.styles.Muted.Render(b.String())
}
