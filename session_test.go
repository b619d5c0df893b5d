package chatbox_test

import (
	"testing"

	"github.com/fwojciec/chatbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threadedSession() chatbox.Session {
	msg := func(id, thread string, role chatbox.Role) chatbox.Message {
		m := chatbox.NewMessage(role, id)
		m.ID = id
		m.ThreadID = thread
		return m
	}
	return chatbox.Session{
		ID: "s1",
		Threads: []chatbox.Thread{
			{ID: "t1", Name: "first"},
			{ID: "t2", Name: "second"},
		},
		Messages: []chatbox.Message{
			msg("m1", "t1", chatbox.RoleUser),
			msg("m2", "t1", chatbox.RoleAssistant),
			msg("m3", "t2", chatbox.RoleUser),
		},
	}
}

func TestSession_ActiveThread(t *testing.T) {
	t.Parallel()
	s := threadedSession()
	th, ok := s.ActiveThread()
	require.True(t, ok)
	assert.Equal(t, "t2", th.ID)

	active := s.ActiveMessages()
	require.Len(t, active, 1)
	assert.Equal(t, "m3", active[0].ID)

	first := s.ThreadMessages("t1")
	require.Len(t, first, 2)
	assert.Equal(t, "m1", first[0].ID)

	_, ok = chatbox.Session{}.ActiveThread()
	assert.False(t, ok)
	assert.Nil(t, chatbox.Session{}.ActiveMessages())
}

func TestSession_GeneratingMessage(t *testing.T) {
	t.Parallel()
	s := threadedSession()
	_, ok := s.GeneratingMessage()
	assert.False(t, ok)

	s.Messages[1].Generating = true
	m, ok := s.GeneratingMessage()
	require.True(t, ok)
	assert.Equal(t, "m2", m.ID)
}

func TestSession_CloneIsDeep(t *testing.T) {
	t.Parallel()
	temp := 0.3
	s := threadedSession()
	s.Settings.Temperature = &temp

	c := s.Clone()
	c.Messages[0].Content[0] = chatbox.TextBlock{Text: "changed"}
	c.Threads[0].Name = "changed"
	*c.Settings.Temperature = 1.5

	assert.Equal(t, "m1", s.Messages[0].Text())
	assert.Equal(t, "first", s.Threads[0].Name)
	assert.Equal(t, 0.3, *s.Settings.Temperature)
}

func TestSessionKey(t *testing.T) {
	t.Parallel()
	key := chatbox.SessionKey("abc")
	assert.Equal(t, "session:abc", key)

	id, ok := chatbox.SessionIDFromKey(key)
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = chatbox.SessionIDFromKey(chatbox.KeySettings)
	assert.False(t, ok)
	_, ok = chatbox.SessionIDFromKey("session:")
	assert.False(t, ok)
}
