package mock

import (
	"context"
	"maps"
	"sync"

	"github.com/fwojciec/chatbox"
)

// Interface compliance check.
var _ chatbox.Storage = (*Storage)(nil)

// Storage is a test double for chatbox.Storage.
// Set the function fields for the methods you need.
type Storage struct {
	GetFn    func(ctx context.Context, key string) ([]byte, error)
	SetFn    func(ctx context.Context, key string, value []byte) error
	DeleteFn func(ctx context.Context, key string) error
	GetAllFn func(ctx context.Context) (map[string][]byte, error)
}

// Get delegates to GetFn.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.GetFn(ctx, key)
}

// Set delegates to SetFn.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.SetFn(ctx, key, value)
}

// Delete delegates to DeleteFn.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.DeleteFn(ctx, key)
}

// GetAll delegates to GetAllFn.
func (s *Storage) GetAll(ctx context.Context) (map[string][]byte, error) {
	return s.GetAllFn(ctx)
}

// MapStorage returns a Storage whose functions operate on an in-memory map,
// along with an accessor for a snapshot of its contents.
func MapStorage() (*Storage, func() map[string][]byte) {
	var mu sync.Mutex
	data := make(map[string][]byte)
	s := &Storage{
		GetFn: func(_ context.Context, key string) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			v, ok := data[key]
			if !ok {
				return nil, chatbox.ErrNotFound
			}
			return append([]byte(nil), v...), nil
		},
		SetFn: func(_ context.Context, key string, value []byte) error {
			mu.Lock()
			defer mu.Unlock()
			data[key] = append([]byte(nil), value...)
			return nil
		},
		DeleteFn: func(_ context.Context, key string) error {
			mu.Lock()
			defer mu.Unlock()
			delete(data, key)
			return nil
		},
		GetAllFn: func(_ context.Context) (map[string][]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			return maps.Clone(data), nil
		},
	}
	snapshot := func() map[string][]byte {
		mu.Lock()
		defer mu.Unlock()
		return maps.Clone(data)
	}
	return s, snapshot
}
