// Package json implements the persisted wire format of sessions, the
// session index and global settings. Documents are versioned envelopes so
// older stores can be detected on load.
package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/chatbox"
)

const version = 1

// MarshalSession serializes a Session to JSON in v1 envelope format.
func MarshalSession(s chatbox.Session) ([]byte, error) {
	env := sessionEnvelope{
		Version:   version,
		ID:        s.ID,
		Name:      s.Name,
		Type:      string(s.Type),
		Settings:  marshalSessionSettings(s.Settings),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Threads:   make([]threadDTO, len(s.Threads)),
		Messages:  make([]messageDTO, len(s.Messages)),
	}
	for i, t := range s.Threads {
		env.Threads[i] = threadDTO{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
	}
	for i, msg := range s.Messages {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = dto
	}
	return json.Marshal(env)
}

// UnmarshalSession deserializes a Session from JSON in v1 envelope format.
func UnmarshalSession(data []byte) (chatbox.Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return chatbox.Session{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != version {
		return chatbox.Session{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	s := chatbox.Session{
		ID:        env.ID,
		Name:      env.Name,
		Type:      chatbox.SessionType(env.Type),
		Settings:  unmarshalSessionSettings(env.Settings),
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Threads:   make([]chatbox.Thread, len(env.Threads)),
		Messages:  make([]chatbox.Message, len(env.Messages)),
	}
	if s.Type == "" {
		s.Type = chatbox.SessionTypeChat
	}
	for i, t := range env.Threads {
		s.Threads[i] = chatbox.Thread{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
	}
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return chatbox.Session{}, fmt.Errorf("message %d: %w", i, err)
		}
		s.Messages[i] = msg
	}
	return s, nil
}

// MarshalSessionList serializes the session index.
func MarshalSessionList(metas []chatbox.SessionMeta) ([]byte, error) {
	env := listEnvelope{Version: version, Sessions: make([]metaDTO, len(metas))}
	for i, m := range metas {
		env.Sessions[i] = metaDTO{ID: m.ID, Name: m.Name, Type: string(m.Type), UpdatedAt: m.UpdatedAt}
	}
	return json.Marshal(env)
}

// UnmarshalSessionList deserializes the session index.
func UnmarshalSessionList(data []byte) ([]chatbox.SessionMeta, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal session list: %w", err)
	}
	if env.Version != version {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	metas := make([]chatbox.SessionMeta, len(env.Sessions))
	for i, m := range env.Sessions {
		metas[i] = chatbox.SessionMeta{ID: m.ID, Name: m.Name, Type: chatbox.SessionType(m.Type), UpdatedAt: m.UpdatedAt}
	}
	return metas, nil
}
