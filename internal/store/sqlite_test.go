package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *SQLiteStore) *User {
	t.Helper()
	u, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	return u
}

func TestCreateAndGetChat(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	url := "https://example.com/doc"
	chat, err := s.CreateChat(u.ID, "My Chat", "web", &url)
	require.NoError(t, err)
	require.NotEmpty(t, chat.ID)

	got, err := s.GetChatByID(chat.ID, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "My Chat", got.Title)
	assert.Equal(t, "web", got.SourceType)
	require.NotNil(t, got.SourceURL)
	assert.Equal(t, url, *got.SourceURL)
}

func TestGetChatByID_Missing(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	got, err := s.GetChatByID("no-such-id", u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetChatsByUserID_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	first, err := s.CreateChat(u.ID, "first", "general", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.CreateChat(u.ID, "second", "general", nil)
	require.NoError(t, err)

	chats, err := s.GetChatsByUserID(u.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, second.ID, chats[0].ID)
	assert.Equal(t, first.ID, chats[1].ID)
}

func TestRenameChat(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	chat, err := s.CreateChat(u.ID, "old", "general", nil)
	require.NoError(t, err)

	ok, err := s.RenameChat(chat.ID, u.ID, "new")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetChatByID(chat.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)

	ok, err = s.RenameChat("missing", u.ID, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteChat_CascadesMessages(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	chat, err := s.CreateChat(u.ID, "doomed", "general", nil)
	require.NoError(t, err)

	for _, role := range []string{RoleUser, RoleAssistant} {
		require.NoError(t, s.CreateMessage(&Message{ChatID: chat.ID, Role: role, Content: "hi"}))
	}

	ok, err := s.DeleteChat(chat.ID, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetChatByID(chat.ID, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.CountMessagesByChatID(chat.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteChat_Missing(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	ok, err := s.DeleteChat("missing", u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	u := newTestUser(t, s)

	chat, err := s.CreateChat(u.ID, "chat", "general", nil)
	require.NoError(t, err)

	contents := []string{"one", "two", "three", "four"}
	for i, c := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, s.CreateMessage(&Message{ChatID: chat.ID, Role: role, Content: c}))
		time.Sleep(5 * time.Millisecond)
	}

	asc, err := s.GetMessagesByChatID(chat.ID)
	require.NoError(t, err)
	require.Len(t, asc, 4)
	for i, c := range contents {
		assert.Equal(t, c, asc[i].Content)
	}

	lastTwo, err := s.GetLastNMessagesByChatID(chat.ID, 2)
	require.NoError(t, err)
	require.Len(t, lastTwo, 2)
	assert.Equal(t, "four", lastTwo[0].Content)
	assert.Equal(t, "three", lastTwo[1].Content)
}
