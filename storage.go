package chatbox

import "context"

// Storage is a durable key/value store for settings and sessions. Exactly
// one implementation is active per run. There are no transactions: the
// last completed write to a key wins.
type Storage interface {
	// Get returns ErrNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for keys that do not exist.
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string][]byte, error)
}

// Storage keys shared by all adapters.
const (
	KeySettings      = "settings"
	KeySessionsList  = "chat-sessions-list"
	keySessionPrefix = "session:"
)

// SessionKey returns the storage key of a session document.
func SessionKey(id string) string {
	return keySessionPrefix + id
}

// SessionIDFromKey reports the session ID encoded in key.
func SessionIDFromKey(key string) (string, bool) {
	if len(key) <= len(keySessionPrefix) || key[:len(keySessionPrefix)] != keySessionPrefix {
		return "", false
	}
	return key[len(keySessionPrefix):], true
}
