package chatbox

import (
	"context"
	"time"
)

// SessionType distinguishes conversational sessions from image generation.
type SessionType string

const (
	SessionTypeChat    SessionType = "chat"
	SessionTypePicture SessionType = "picture"
)

// Session represents a conversation with its own settings and history.
//
// Messages holds every thread's messages in creation order. Messages of a
// thread are contiguous and the last entry of Threads is the active thread,
// so the active thread's messages are always a suffix of Messages.
type Session struct {
	ID        string
	Name      string
	Type      SessionType
	Messages  []Message
	Threads   []Thread
	Settings  SessionSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Thread is a branch of a session's history.
type Thread struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ActiveThread returns the thread new messages are appended to.
func (s Session) ActiveThread() (Thread, bool) {
	if len(s.Threads) == 0 {
		return Thread{}, false
	}
	return s.Threads[len(s.Threads)-1], true
}

// ThreadMessages returns the messages that belong to the given thread.
func (s Session) ThreadMessages(threadID string) []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out
}

// ActiveMessages returns the active thread's messages.
func (s Session) ActiveMessages() []Message {
	t, ok := s.ActiveThread()
	if !ok {
		return nil
	}
	return s.ThreadMessages(t.ID)
}

// GeneratingMessage returns the message currently being generated, if any.
func (s Session) GeneratingMessage() (Message, bool) {
	for _, m := range s.Messages {
		if m.Generating {
			return m, true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	msgs := make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.Clone()
	}
	s.Messages = msgs
	s.Threads = append([]Thread(nil), s.Threads...)
	s.Settings = s.Settings.Clone()
	return s
}

// SessionMeta is the listing entry for a session.
type SessionMeta struct {
	ID        string
	Name      string
	Type      SessionType
	UpdatedAt time.Time
}

// SessionStore holds sessions and their ordered messages. Implementations
// must be safe for concurrent use.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	Session(id string) (Session, error)
	Sessions() []SessionMeta
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage inserts msg at the end of the active thread and returns
	// it with ID, ThreadID and CreatedAt assigned.
	AppendMessage(sessionID string, msg Message) (Message, error)
	// MutateMessage applies patch to a generating message. It returns
	// ErrMessageFinalized without applying anything when the message is no
	// longer generating.
	MutateMessage(sessionID, messageID string, patch func(*Message)) error

	// BeginGeneration marks messageID as the session's generating message
	// and stores its cancellation handle.
	BeginGeneration(sessionID, messageID string, cancel context.CancelFunc) error
	// FinishGeneration applies patch and clears the generating flag.
	FinishGeneration(sessionID, messageID string, patch func(*Message)) error
	// CancelGeneration invokes the stored cancellation handle and finalizes
	// the generating message as cancelled.
	CancelGeneration(sessionID string) error

	StartNewThread(sessionID, name string) (Thread, error)
	RollbackThread(sessionID string) error
	ThreadMessages(sessionID, threadID string) ([]Message, error)

	UpdateSettings(sessionID string, patch func(*SessionSettings)) error

	// Subscribe returns a channel that always holds the latest snapshot of
	// the session after each change, and a function that ends the
	// subscription.
	Subscribe(sessionID string) (<-chan Session, func())
}
