package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

type fakeSessions struct {
	mu           sync.Mutex
	chats        map[string]*store.Chat
	messages     map[string][]store.Message
	failMessages bool
	renamed      chan string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		chats:    make(map[string]*store.Chat),
		messages: make(map[string][]store.Message),
		renamed:  make(chan string, 1),
	}
}

func (f *fakeSessions) CreateChat(userID int64, title, sourceType string, sourceURL *string) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := &store.Chat{ID: uuid.New().String(), UserID: userID, Title: title, SourceType: sourceType, SourceURL: sourceURL, CreatedAt: time.Now()}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeSessions) GetChatByID(chatID string, userID int64) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, nil
	}
	return chat, nil
}

func (f *fakeSessions) GetChatsByUserID(userID int64) ([]store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Chat
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeSessions) RenameChat(chatID string, userID int64, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return false, nil
	}
	chat.Title = title
	select {
	case f.renamed <- title:
	default:
	}
	return true, nil
}

func (f *fakeSessions) DeleteChat(chatID string, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chats[chatID]; !ok {
		return false, nil
	}
	delete(f.chats, chatID)
	delete(f.messages, chatID)
	return true, nil
}

func (f *fakeSessions) CreateMessage(msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMessages {
		return errors.New("disk full")
	}
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now()
	f.messages[msg.ChatID] = append(f.messages[msg.ChatID], *msg)
	return nil
}

func (f *fakeSessions) GetMessagesByChatID(chatID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeSessions) GetLastNMessagesByChatID(chatID string, n int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	// Newest first, like the real store.
	out := make([]store.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

type fakeRetriever struct {
	chunks []knowledge.Chunk
	err    error
}

func (f *fakeRetriever) Search(_ context.Context, _ string, _ int) ([]knowledge.Chunk, error) {
	return f.chunks, f.err
}

type fakeLLM struct {
	mu         sync.Mutex
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.lastPrompt = prompt
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeLLM) GenerateTitle(_ context.Context, seed string) (string, error) {
	return "About " + seed, nil
}

func (f *fakeLLM) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

func TestAnswerCreatesSessionLazily(t *testing.T) {
	sessions := newFakeSessions()
	llm := &fakeLLM{answer: "Revenue grew eight percent."}
	svc := NewChatService(sessions, &fakeRetriever{chunks: []knowledge.Chunk{{Title: "Q3 Report", Text: "revenue grew"}}}, llm, 5)

	resp, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, Question: "what happened to revenue?"})
	require.NoError(t, err)
	require.NotNil(t, resp.Chat)
	assert.Equal(t, "Revenue grew eight percent.", resp.Answer)

	msgs, err := sessions.GetMessagesByChatID(resp.Chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "what happened to revenue?", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)

	// The title goroutine eventually replaces the placeholder.
	select {
	case title := <-sessions.renamed:
		assert.Equal(t, "About what happened to revenue?", title)
	case <-time.After(2 * time.Second):
		t.Fatal("chat title was never generated")
	}
}

func TestAnswerRecordsSuppliedSourceMetadata(t *testing.T) {
	sessions := newFakeSessions()
	svc := NewChatService(sessions, &fakeRetriever{}, &fakeLLM{answer: "ok"}, 5)

	url := "https://www.youtube.com/watch?v=abc12345678"
	resp, err := svc.Answer(context.Background(), AnswerRequest{
		UserID:      1,
		Question:    "what is this video about?",
		SourceTitle: "Conference Talk",
		SourceType:  "youtube",
		SourceURL:   &url,
	})
	require.NoError(t, err)

	chat, err := sessions.GetChatByID(resp.Chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Conference Talk", chat.Title)
	assert.Equal(t, "youtube", chat.SourceType)
	require.NotNil(t, chat.SourceURL)
	assert.Equal(t, url, *chat.SourceURL)

	// A supplied title is kept; no generated title overwrites it.
	select {
	case title := <-sessions.renamed:
		t.Fatalf("unexpected title generation: %q", title)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAnswerDefaultsSourceMetadata(t *testing.T) {
	sessions := newFakeSessions()
	svc := NewChatService(sessions, &fakeRetriever{}, &fakeLLM{answer: "ok"}, 5)

	resp, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, Question: "q"})
	require.NoError(t, err)

	chat, err := sessions.GetChatByID(resp.Chat.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "general", chat.SourceType)
	assert.Nil(t, chat.SourceURL)
}

func TestAnswerUnknownSession(t *testing.T) {
	svc := NewChatService(newFakeSessions(), &fakeRetriever{}, &fakeLLM{answer: "x"}, 5)

	_, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, SessionID: "nope", Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAnswerEmptyQuestion(t *testing.T) {
	svc := NewChatService(newFakeSessions(), &fakeRetriever{}, &fakeLLM{}, 5)
	_, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1})
	require.Error(t, err)
}

func TestAnswerDegradesToApologyOnRetrievalError(t *testing.T) {
	sessions := newFakeSessions()
	svc := NewChatService(sessions, &fakeRetriever{err: errors.New("index down")}, &fakeLLM{answer: "unused"}, 5)
	chat, err := sessions.CreateChat(1, "T", "general", nil)
	require.NoError(t, err)

	resp, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, SessionID: chat.ID, Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, apologyMessage, resp.Answer)

	// The apology is still recorded as the assistant turn.
	msgs, _ := sessions.GetMessagesByChatID(chat.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, apologyMessage, msgs[1].Content)
}

func TestAnswerDegradesToApologyOnModelError(t *testing.T) {
	sessions := newFakeSessions()
	svc := NewChatService(sessions, &fakeRetriever{}, &fakeLLM{err: errors.New("quota exceeded")}, 5)
	chat, err := sessions.CreateChat(1, "T", "general", nil)
	require.NoError(t, err)

	resp, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, SessionID: chat.ID, Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, apologyMessage, resp.Answer)
}

func TestAnswerSurvivesPersistenceFailure(t *testing.T) {
	sessions := newFakeSessions()
	sessions.failMessages = true
	svc := NewChatService(sessions, &fakeRetriever{}, &fakeLLM{answer: "still answered"}, 5)
	chat, err := sessions.CreateChat(1, "T", "general", nil)
	require.NoError(t, err)

	resp, err := svc.Answer(context.Background(), AnswerRequest{UserID: 1, SessionID: chat.ID, Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "still answered", resp.Answer)
}

func TestAnswerReplaysHistoryChronologically(t *testing.T) {
	sessions := newFakeSessions()
	llm := &fakeLLM{answer: "ok"}
	svc := NewChatService(sessions, &fakeRetriever{}, llm, 5)
	chat, err := sessions.CreateChat(1, "T", "general", nil)
	require.NoError(t, err)

	require.NoError(t, sessions.CreateMessage(&store.Message{ChatID: chat.ID, Role: store.RoleUser, Content: "first question"}))
	require.NoError(t, sessions.CreateMessage(&store.Message{ChatID: chat.ID, Role: store.RoleAssistant, Content: "first answer"}))

	_, err = svc.Answer(context.Background(), AnswerRequest{UserID: 1, SessionID: chat.ID, Question: "follow up"})
	require.NoError(t, err)

	prompt := llm.prompt()
	firstAt := strings.Index(prompt, "User: first question")
	secondAt := strings.Index(prompt, "Assistant: first answer")
	require.NotEqual(t, -1, firstAt)
	require.NotEqual(t, -1, secondAt)
	assert.Less(t, firstAt, secondAt)
	// The question under answer is not replayed as history.
	assert.NotContains(t, prompt[:secondAt], "follow up")
}

func TestGetSessionMissing(t *testing.T) {
	svc := NewChatService(newFakeSessions(), &fakeRetriever{}, &fakeLLM{}, 5)
	chat, msgs, err := svc.GetSession("missing", 1)
	require.NoError(t, err)
	assert.Nil(t, chat)
	assert.Nil(t, msgs)
}

func TestRenameSessionEmptyTitle(t *testing.T) {
	svc := NewChatService(newFakeSessions(), &fakeRetriever{}, &fakeLLM{}, 5)
	_, err := svc.RenameSession("id", 1, "")
	require.Error(t, err)
}
