// Package agent drives generations: it turns a user submission into a
// provider request and streams the reply into the session store.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/chatbox"
)

// Orchestrator coordinates the session store, the provider registry and the
// global settings. The only per-session state it holds is the set of turns
// being set up, which keeps concurrent submissions from interleaving.
type Orchestrator struct {
	store    chatbox.SessionStore
	registry *chatbox.Registry
	settings chatbox.SettingsStore

	mu       sync.Mutex
	starting map[string]struct{}

	now      func() time.Time
	logger   *slog.Logger
	onAttach func(sessionID string, f chatbox.AttachedFile)
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the time source used to measure first-token latency.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithAttachmentObserver sets a callback that receives every attachment
// status change during Submit.
func WithAttachmentObserver(f func(sessionID string, file chatbox.AttachedFile)) Option {
	return func(o *Orchestrator) { o.onAttach = f }
}

// New creates an Orchestrator.
func New(store chatbox.SessionStore, registry *chatbox.Registry, settings chatbox.SettingsStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		registry: registry,
		settings: settings,
		starting: make(map[string]struct{}),
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		onAttach: func(string, chatbox.AttachedFile) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession creates a session of type t whose settings are copied from the
// global defaults for that type.
func (o *Orchestrator) NewSession(ctx context.Context, t chatbox.SessionType, name string) (chatbox.Session, error) {
	settings, err := o.settings.Settings(ctx)
	if err != nil {
		return chatbox.Session{}, fmt.Errorf("agent: %w", err)
	}
	if t == "" {
		t = chatbox.SessionTypeChat
	}
	if name == "" {
		name = "Untitled"
	}
	return o.store.CreateSession(ctx, chatbox.Session{
		Name:     name,
		Type:     t,
		Settings: settings.SessionDefaults(t),
	})
}

// Generation is the handle of one streaming assistant turn.
type Generation struct {
	SessionID string
	MessageID string

	done chan struct{}
	err  error
}

// Done is closed when the generation has reached a terminal status.
func (g *Generation) Done() <-chan struct{} { return g.done }

// Wait blocks until the generation ends and returns its failure, if any.
// Cancellation is not a failure.
func (g *Generation) Wait() error {
	<-g.done
	return g.err
}

// Submit appends input as a user message and starts generating the reply.
// Configuration and upload failures are recorded on an errored assistant
// message and returned before any request is streamed. The generation runs
// until it completes or is cancelled with Cancel; ctx only bounds the setup.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, input string, attachments []chatbox.File) (*Generation, error) {
	release, err := o.reserve(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.store.Session(sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if _, busy := sess.GeneratingMessage(); busy {
		return nil, fmt.Errorf("agent: %w", chatbox.ErrGenerating)
	}

	user := chatbox.NewMessage(chatbox.RoleUser, input)
	if strings.TrimSpace(input) == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("agent: empty submission: %w", chatbox.ErrValidation)
	}

	provider, err := o.openProvider(ctx, sess.Settings.Provider)
	if err != nil {
		return nil, o.fail(sessionID, user, sess.Settings, err)
	}

	blocks, err := o.upload(ctx, sessionID, provider, attachments)
	if err != nil {
		return nil, o.fail(sessionID, user, sess.Settings, err)
	}
	user.Content = append(blocks, user.Content...)

	if _, err := o.store.AppendMessage(sessionID, user); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return o.generate(sessionID, provider)
}

// Retry generates a new reply to the last user message of the active
// thread. The new reply is appended; earlier replies are kept.
func (o *Orchestrator) Retry(ctx context.Context, sessionID string) (*Generation, error) {
	release, err := o.reserve(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.store.Session(sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if _, busy := sess.GeneratingMessage(); busy {
		return nil, fmt.Errorf("agent: %w", chatbox.ErrGenerating)
	}
	if !slices.ContainsFunc(sess.ActiveMessages(), func(m chatbox.Message) bool { return m.Role == chatbox.RoleUser }) {
		return nil, fmt.Errorf("agent: no user message to retry: %w", chatbox.ErrNotFound)
	}
	provider, err := o.openProvider(ctx, sess.Settings.Provider)
	if err != nil {
		return nil, o.fail(sessionID, chatbox.Message{}, sess.Settings, err)
	}
	return o.generate(sessionID, provider)
}

// Cancel stops the session's generation. Content streamed so far is kept.
func (o *Orchestrator) Cancel(sessionID string) error {
	if err := o.store.CancelGeneration(sessionID); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

// SelectModel switches the provider and model used by the session's next
// generations.
func (o *Orchestrator) SelectModel(sessionID string, provider chatbox.ProviderID, modelID string) error {
	if !o.registry.Has(provider) {
		return &chatbox.ConfigurationError{Provider: provider, Field: "provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	err := o.store.UpdateSettings(sessionID, func(s *chatbox.SessionSettings) {
		s.Provider = provider
		s.ModelID = modelID
	})
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

// ListModels returns the provider's catalog merged with the custom models
// configured for it, sorted.
func (o *Orchestrator) ListModels(ctx context.Context, id chatbox.ProviderID) ([]string, error) {
	settings, err := o.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	provider, err := o.registry.Open(ctx, id, settings.Provider(id))
	if err != nil {
		return nil, err
	}
	models, err := provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	models = append(models, settings.Provider(id).Models...)
	slices.Sort(models)
	return slices.Compact(models), nil
}

// reserve claims sessionID until its generating placeholder is in the
// store. A second Submit or Retry during setup fails with ErrGenerating.
func (o *Orchestrator) reserve(sessionID string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.starting[sessionID]; ok {
		return nil, fmt.Errorf("agent: %w", chatbox.ErrGenerating)
	}
	o.starting[sessionID] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.starting, sessionID)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) openProvider(ctx context.Context, id chatbox.ProviderID) (chatbox.Provider, error) {
	settings, err := o.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return o.registry.Open(ctx, id, settings.Provider(id))
}

// fail records err on an assistant message that never streamed. The user
// message is appended first when it has content.
func (o *Orchestrator) fail(sessionID string, user chatbox.Message, settings chatbox.SessionSettings, err error) error {
	o.logger.Warn("generation not started", "session", sessionID, "error", err)
	if len(user.Content) > 0 {
		if _, appendErr := o.store.AppendMessage(sessionID, user); appendErr != nil {
			return errors.Join(err, appendErr)
		}
	}
	_, appendErr := o.store.AppendMessage(sessionID, chatbox.Message{
		Role:          chatbox.RoleAssistant,
		Status:        chatbox.StatusErrored,
		Error:         &chatbox.MessageError{Kind: chatbox.ErrorKindOf(err), Message: err.Error()},
		Provider:      settings.Provider,
		Model:         settings.ModelID,
		StopReason:    chatbox.StopError,
		RawStopReason: "error",
	})
	if appendErr != nil {
		return errors.Join(err, appendErr)
	}
	return err
}

// upload sends attachments to the provider. Images are inlined when the
// provider has no upload endpoint.
func (o *Orchestrator) upload(ctx context.Context, sessionID string, provider chatbox.Provider, files []chatbox.File) ([]chatbox.ContentBlock, error) {
	var blocks []chatbox.ContentBlock
	for _, f := range files {
		o.onAttach(sessionID, chatbox.AttachedFile{Name: f.Name, MimeType: f.MimeType, Status: chatbox.AttachmentUploading, UpdatedAt: o.now()})
		uri, err := provider.UploadFile(ctx, f)
		switch {
		case errors.Is(err, chatbox.ErrUnsupported) && strings.HasPrefix(f.MimeType, "image/"):
			blocks = append(blocks, chatbox.ImageBlock{Data: f.Data, MimeType: f.MimeType})
		case err != nil:
			return nil, fmt.Errorf("upload %s: %w", f.Name, err)
		default:
			blocks = append(blocks, chatbox.FileBlock{Name: f.Name, MimeType: f.MimeType, URI: uri})
		}
		o.onAttach(sessionID, chatbox.AttachedFile{Name: f.Name, MimeType: f.MimeType, Status: chatbox.AttachmentReady, URI: uri, UpdatedAt: o.now()})
	}
	return blocks, nil
}

// generate appends the assistant placeholder and streams into it.
func (o *Orchestrator) generate(sessionID string, provider chatbox.Provider) (*Generation, error) {
	sess, err := o.store.Session(sessionID)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	req := BuildRequest(sess.Settings, sess.ActiveMessages(), provider.Capabilities(sess.Settings.ModelID))

	placeholder, err := o.store.AppendMessage(sessionID, chatbox.Message{
		Role:       chatbox.RoleAssistant,
		Generating: true,
		Status:     chatbox.StatusRequesting,
		Provider:   provider.ID(),
		Model:      sess.Settings.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.store.BeginGeneration(sessionID, placeholder.ID, cancel); err != nil {
		cancel()
		return nil, fmt.Errorf("agent: %w", err)
	}

	g := &Generation{SessionID: sessionID, MessageID: placeholder.ID, done: make(chan struct{})}
	go func() {
		defer close(g.done)
		defer cancel()
		g.err = o.stream(ctx, g, provider, req)
	}()
	return g, nil
}

// stream consumes the provider stream into the placeholder message. It
// returns the failure recorded on the message, or nil.
func (o *Orchestrator) stream(ctx context.Context, g *Generation, provider chatbox.Provider, req chatbox.Request) error {
	start := o.now()
	logger := o.logger.With("session", g.SessionID, "message", g.MessageID, "provider", provider.ID())
	logger.Debug("generation started", "model", req.Model, "messages", len(req.Messages))

	s, err := provider.Stream(ctx, req)
	if err != nil {
		return o.finish(g, chatbox.Message{}, err, logger)
	}
	defer s.Close()

	first := true
	var streamErr error
	for {
		evt, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		err = o.store.MutateMessage(g.SessionID, g.MessageID, func(m *chatbox.Message) {
			m.Content = chatbox.ApplyEvent(m.Content, evt)
			if first {
				m.FirstTokenLatency = o.now().Sub(start)
				m.Status = chatbox.StatusStreaming
			}
		})
		if errors.Is(err, chatbox.ErrMessageFinalized) {
			// Cancelled through the store; remaining deltas are discarded.
			logger.Debug("generation cancelled")
			return nil
		}
		if err != nil {
			streamErr = err
			break
		}
		first = false
	}

	msg, msgErr := s.Message()
	if msgErr != nil {
		msg = chatbox.Message{}
	}
	return o.finish(g, msg, streamErr, logger)
}

// finish finalizes the placeholder from the stream's assembled message and
// its terminal error.
func (o *Orchestrator) finish(g *Generation, msg chatbox.Message, streamErr error, logger *slog.Logger) error {
	var failure error
	err := o.store.FinishGeneration(g.SessionID, g.MessageID, func(m *chatbox.Message) {
		if len(msg.Content) > 0 {
			m.Content = msg.Content
		}
		if msg.Model != "" {
			m.Model = msg.Model
		}
		m.Usage = msg.Usage
		m.StopReason = msg.StopReason
		m.RawStopReason = msg.RawStopReason

		switch {
		case streamErr == nil:
			m.Status = chatbox.StatusCompleted
		case chatbox.IsCancellation(streamErr):
			m.Status = chatbox.StatusCancelled
			m.StopReason = chatbox.StopAborted
			m.RawStopReason = "aborted"
		default:
			failure = streamErr
			m.Status = chatbox.StatusErrored
			m.Error = &chatbox.MessageError{Kind: chatbox.ErrorKindOf(streamErr), Message: streamErr.Error()}
			if m.StopReason == "" {
				m.StopReason = chatbox.StopError
				m.RawStopReason = "error"
			}
		}
	})
	if errors.Is(err, chatbox.ErrMessageFinalized) {
		logger.Debug("generation cancelled")
		return nil
	}
	if err != nil {
		logger.Error("finish generation", "error", err)
		return err
	}
	if failure != nil {
		logger.Warn("generation failed", "error", failure, "kind", chatbox.ErrorKindOf(failure))
	} else {
		logger.Debug("generation finished", "stop_reason", msg.StopReason, "output_tokens", msg.Usage.OutputTokens)
	}
	return failure
}
