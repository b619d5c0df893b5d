// Package memory implements [chatbox.SessionStore] in process memory, with
// optional write-behind persistence to a [chatbox.Storage].
package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/chatbox"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Interface compliance check.
var _ chatbox.SessionStore = (*Store)(nil)

// Store holds sessions in memory. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	nextSub  int

	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	// Persistence. storage is nil for a purely in-memory store.
	storage chatbox.Storage
	limiter *rate.Limiter
	dirty   map[string]struct{}
	writeMu sync.Mutex
	wake    chan struct{}
	ctx     context.Context
	stop    context.CancelFunc
	stopped chan struct{}
}

type entry struct {
	session chatbox.Session
	cancel  context.CancelFunc
	subs    map[int]chan chatbox.Session
}

// Option configures a [Store].
type Option func(*Store)

// WithStorage enables persistence of every change to st.
func WithStorage(st chatbox.Storage) Option {
	return func(s *Store) { s.storage = st }
}

// WithWriteRate limits how often the background writer flushes to storage.
// Changes made between flushes are coalesced.
func WithWriteRate(r rate.Limit, burst int) Option {
	return func(s *Store) { s.limiter = rate.NewLimiter(r, burst) }
}

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the generator for session, thread and message IDs.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store. When a storage is configured a background writer is
// started; call Close to stop it and write pending changes.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.New(slog.DiscardHandler),
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		dirty:    make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	if s.storage != nil {
		go s.run()
	} else {
		close(s.stopped)
	}
	return s
}

// CreateSession stores a new session. Missing ID, type, timestamps and the
// initial thread are filled in.
func (s *Store) CreateSession(_ context.Context, sess chatbox.Session) (chatbox.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = s.newID()
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return chatbox.Session{}, fmt.Errorf("memory: session %q already exists: %w", sess.ID, chatbox.ErrValidation)
	}
	if sess.Type == "" {
		sess.Type = chatbox.SessionTypeChat
	}
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	sess = sess.Clone()
	s.normalizeLocked(&sess)

	s.sessions[sess.ID] = &entry{session: sess, subs: make(map[int]chan chatbox.Session)}
	s.markDirtyLocked(sess.ID)
	return sess.Clone(), nil
}

// normalizeLocked guarantees a session has at least one thread and that
// every message belongs to one.
func (s *Store) normalizeLocked(sess *chatbox.Session) {
	if len(sess.Threads) == 0 {
		sess.Threads = []chatbox.Thread{{ID: s.newID(), CreatedAt: sess.CreatedAt}}
	}
	active := sess.Threads[len(sess.Threads)-1].ID
	for i := range sess.Messages {
		m := &sess.Messages[i]
		if m.ID == "" {
			m.ID = s.newID()
		}
		if m.ThreadID == "" {
			m.ThreadID = active
		}
	}
}

// Session returns a snapshot of the session with the given ID.
func (s *Store) Session(id string) (chatbox.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(id)
	if err != nil {
		return chatbox.Session{}, err
	}
	return e.session.Clone(), nil
}

// Sessions lists all sessions, most recently updated first.
func (s *Store) Sessions() []chatbox.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metasLocked()
}

func (s *Store) metasLocked() []chatbox.SessionMeta {
	metas := make([]chatbox.SessionMeta, 0, len(s.sessions))
	for _, e := range s.sessions {
		metas = append(metas, chatbox.SessionMeta{
			ID:        e.session.ID,
			Name:      e.session.Name,
			Type:      e.session.Type,
			UpdatedAt: e.session.UpdatedAt,
		})
	}
	slices.SortFunc(metas, func(a, b chatbox.SessionMeta) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return metas
}

// DeleteSession removes a session, cancelling its generation if one is in
// progress. Subscriptions to the session are closed.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(id)
	if err != nil {
		return err
	}
	if e.cancel != nil {
		e.cancel()
	}
	for sid, ch := range e.subs {
		close(ch)
		delete(e.subs, sid)
	}
	delete(s.sessions, id)
	s.markDirtyLocked(id)
	return nil
}

// AppendMessage adds msg to the end of the session's active thread.
func (s *Store) AppendMessage(sessionID string, msg chatbox.Message) (chatbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return chatbox.Message{}, err
	}
	if msg.Generating {
		if _, busy := e.session.GeneratingMessage(); busy {
			return chatbox.Message{}, fmt.Errorf("memory: %w", chatbox.ErrGenerating)
		}
	}

	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	thread, _ := e.session.ActiveThread()
	msg.ThreadID = thread.ID
	now := s.now()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	e.session.Messages = append(e.session.Messages, msg)
	s.touchLocked(e)
	return msg.Clone(), nil
}

// MutateMessage applies patch to a generating message. Identity fields and
// the generating flag are not changed by patch.
func (s *Store) MutateMessage(sessionID, messageID string, patch func(*chatbox.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, idx, err := s.messageLocked(sessionID, messageID)
	if err != nil {
		return err
	}
	m := &e.session.Messages[idx]
	if !m.Generating {
		return fmt.Errorf("memory: %w", chatbox.ErrMessageFinalized)
	}
	s.patchLocked(m, patch)
	m.Generating = true
	s.touchLocked(e)
	return nil
}

// BeginGeneration marks messageID as generating and stores cancel, which
// CancelGeneration and DeleteSession invoke.
func (s *Store) BeginGeneration(sessionID, messageID string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, idx, err := s.messageLocked(sessionID, messageID)
	if err != nil {
		return err
	}
	if cur, busy := e.session.GeneratingMessage(); busy && cur.ID != messageID {
		return fmt.Errorf("memory: %w", chatbox.ErrGenerating)
	}
	m := &e.session.Messages[idx]
	if m.Status.Terminal() {
		return fmt.Errorf("memory: %w", chatbox.ErrMessageFinalized)
	}
	m.Generating = true
	if m.Status == "" {
		m.Status = chatbox.StatusRequesting
	}
	m.UpdatedAt = s.now()
	e.cancel = cancel
	s.touchLocked(e)
	return nil
}

// FinishGeneration applies patch and clears the generating flag. A message
// left without a terminal status is marked completed.
func (s *Store) FinishGeneration(sessionID, messageID string, patch func(*chatbox.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, idx, err := s.messageLocked(sessionID, messageID)
	if err != nil {
		return err
	}
	m := &e.session.Messages[idx]
	if !m.Generating {
		return fmt.Errorf("memory: %w", chatbox.ErrMessageFinalized)
	}
	s.patchLocked(m, patch)
	m.Generating = false
	if !m.Status.Terminal() {
		m.Status = chatbox.StatusCompleted
	}
	e.cancel = nil
	s.touchLocked(e)
	return nil
}

// CancelGeneration stops the session's generation, if any. The generating
// message keeps its partial content and is marked cancelled.
func (s *Store) CancelGeneration(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return err
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	for i := range e.session.Messages {
		m := &e.session.Messages[i]
		if !m.Generating {
			continue
		}
		m.Generating = false
		m.Status = chatbox.StatusCancelled
		if m.StopReason == "" {
			m.StopReason = chatbox.StopAborted
			m.RawStopReason = "aborted"
		}
		m.UpdatedAt = s.now()
		s.touchLocked(e)
	}
	return nil
}

// StartNewThread appends a thread and makes it active.
func (s *Store) StartNewThread(sessionID, name string) (chatbox.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return chatbox.Thread{}, err
	}
	if _, busy := e.session.GeneratingMessage(); busy {
		return chatbox.Thread{}, fmt.Errorf("memory: %w", chatbox.ErrGenerating)
	}
	if name == "" {
		name = fmt.Sprintf("Thread %d", len(e.session.Threads)+1)
	}
	t := chatbox.Thread{ID: s.newID(), Name: name, CreatedAt: s.now()}
	e.session.Threads = append(e.session.Threads, t)
	s.touchLocked(e)
	return t, nil
}

// RollbackThread discards the active thread's messages. The previous thread
// becomes active; a session's only thread is kept, empty.
func (s *Store) RollbackThread(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return err
	}
	if _, busy := e.session.GeneratingMessage(); busy {
		return fmt.Errorf("memory: %w", chatbox.ErrGenerating)
	}
	active, ok := e.session.ActiveThread()
	if !ok {
		return nil
	}
	// Messages of the active thread are the sequence suffix.
	cut := len(e.session.Messages)
	for cut > 0 && e.session.Messages[cut-1].ThreadID == active.ID {
		cut--
	}
	e.session.Messages = e.session.Messages[:cut:cut]
	if len(e.session.Threads) > 1 {
		e.session.Threads = e.session.Threads[:len(e.session.Threads)-1]
	}
	s.touchLocked(e)
	return nil
}

// ThreadMessages returns the messages of one thread in creation order.
func (s *Store) ThreadMessages(sessionID, threadID string) ([]chatbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(e.session.Threads, func(t chatbox.Thread) bool { return t.ID == threadID }) {
		return nil, fmt.Errorf("memory: thread %q: %w", threadID, chatbox.ErrNotFound)
	}
	var out []chatbox.Message
	for _, m := range e.session.ThreadMessages(threadID) {
		out = append(out, m.Clone())
	}
	return out, nil
}

// UpdateSettings applies patch to the session's settings.
func (s *Store) UpdateSettings(sessionID string, patch func(*chatbox.SessionSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return err
	}
	settings := e.session.Settings.Clone()
	patch(&settings)
	e.session.Settings = settings
	s.touchLocked(e)
	return nil
}

// Rename changes the session's display name.
func (s *Store) Rename(sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return err
	}
	e.session.Name = name
	s.touchLocked(e)
	return nil
}

// Subscribe returns a channel that receives the session's latest snapshot
// after every change, starting with the current state. Slow readers only
// miss intermediate snapshots. The channel is closed by the returned
// function or when the session is deleted; it is closed immediately for an
// unknown session.
func (s *Store) Subscribe(sessionID string) (<-chan chatbox.Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan chatbox.Session, 1)
	e, ok := s.sessions[sessionID]
	if !ok {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	e.subs[id] = ch
	ch <- e.session.Clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := e.subs[id]; ok {
				close(sub)
				delete(e.subs, id)
			}
		})
	}
}

func (s *Store) entryLocked(id string) (*entry, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("memory: session %q: %w", id, chatbox.ErrNotFound)
	}
	return e, nil
}

func (s *Store) messageLocked(sessionID, messageID string) (*entry, int, error) {
	e, err := s.entryLocked(sessionID)
	if err != nil {
		return nil, 0, err
	}
	idx := slices.IndexFunc(e.session.Messages, func(m chatbox.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return nil, 0, fmt.Errorf("memory: message %q: %w", messageID, chatbox.ErrNotFound)
	}
	return e, idx, nil
}

// patchLocked runs patch on m, keeping fields owned by the store.
func (s *Store) patchLocked(m *chatbox.Message, patch func(*chatbox.Message)) {
	id, thread, role, created := m.ID, m.ThreadID, m.Role, m.CreatedAt
	if patch != nil {
		patch(m)
	}
	m.ID, m.ThreadID, m.Role, m.CreatedAt = id, thread, role, created
	m.UpdatedAt = s.now()
}

// touchLocked records a change: it bumps UpdatedAt, publishes a snapshot to
// subscribers and schedules persistence.
func (s *Store) touchLocked(e *entry) {
	e.session.UpdatedAt = s.now()
	if len(e.subs) > 0 {
		snap := e.session.Clone()
		for _, ch := range e.subs {
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	s.markDirtyLocked(e.session.ID)
}
