package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fwojciec/chatbox"
	"github.com/fwojciec/chatbox/json"
)

// Load restores every session found in storage. Messages that were still
// generating when the previous process stopped are restored as cancelled.
// Sessions already held in memory are not replaced.
func (s *Store) Load(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	all, err := s.storage.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("memory: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, data := range all {
		id, ok := chatbox.SessionIDFromKey(key)
		if !ok {
			continue
		}
		if _, exists := s.sessions[id]; exists {
			continue
		}
		sess, err := json.UnmarshalSession(data)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable session", "key", key, "error", err)
			continue
		}
		sess.ID = id
		s.normalizeLocked(&sess)
		repaired := false
		for i := range sess.Messages {
			m := &sess.Messages[i]
			if m.Generating {
				m.Generating = false
				m.Status = chatbox.StatusCancelled
				if m.StopReason == "" {
					m.StopReason = chatbox.StopAborted
					m.RawStopReason = "aborted"
				}
				repaired = true
			}
		}
		s.sessions[id] = &entry{session: sess, subs: make(map[int]chan chatbox.Session)}
		if repaired {
			s.markDirtyLocked(id)
		}
	}
	s.logger.InfoContext(ctx, "sessions loaded", "count", len(s.sessions))
	return nil
}

// Flush writes all pending changes to storage.
func (s *Store) Flush(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	return s.flush(ctx)
}

// Close stops the background writer and writes pending changes. Generations
// still in progress are not cancelled.
func (s *Store) Close() error {
	s.stop()
	<-s.stopped
	return s.Flush(context.Background())
}

func (s *Store) markDirtyLocked(id string) {
	if s.storage == nil {
		return
	}
	s.dirty[id] = struct{}{}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		if err := s.flush(s.ctx); err != nil {
			s.logger.Warn("persist sessions", "error", err)
		}
	}
}

// flush snapshots the dirty set under the store lock and writes it outside
// of it. writeMu orders concurrent flushes so the last snapshot taken is the
// last one written.
func (s *Store) flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	writes := make(map[string][]byte, len(s.dirty))
	var (
		deletes []string
		errs    []error
	)
	for id := range s.dirty {
		e, ok := s.sessions[id]
		if !ok {
			deletes = append(deletes, id)
			continue
		}
		data, err := json.MarshalSession(e.session)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", id, err))
			continue
		}
		writes[id] = data
	}
	index, err := json.MarshalSessionList(s.metasLocked())
	if err != nil {
		errs = append(errs, fmt.Errorf("session list: %w", err))
	}
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()

	var failed []string
	for id, data := range writes {
		if err := s.storage.Set(ctx, chatbox.SessionKey(id), data); err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", id, err))
			failed = append(failed, id)
		}
	}
	for _, id := range deletes {
		if err := s.storage.Delete(ctx, chatbox.SessionKey(id)); err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", id, err))
			failed = append(failed, id)
		}
	}
	if index != nil {
		if err := s.storage.Set(ctx, chatbox.KeySessionsList, index); err != nil {
			errs = append(errs, fmt.Errorf("session list: %w", err))
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		for _, id := range failed {
			s.dirty[id] = struct{}{}
		}
		s.mu.Unlock()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("memory: flush: %w", err)
	}
	return nil
}
