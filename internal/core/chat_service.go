package core

import (
	"context"
	"fmt"
	"log"

	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

const (
	// historyWindow is how many recent messages are replayed into the
	// prompt as conversation context.
	historyWindow = 10

	defaultTopK = 5

	defaultChatTitle  = "New Chat"
	defaultSourceType = "general"

	apologyMessage = "I'm sorry, I encountered an error while processing your request."
)

// SessionStore is the slice of the relational store the chat service needs.
type SessionStore interface {
	CreateChat(userID int64, title, sourceType string, sourceURL *string) (*store.Chat, error)
	GetChatByID(chatID string, userID int64) (*store.Chat, error)
	GetChatsByUserID(userID int64) ([]store.Chat, error)
	RenameChat(chatID string, userID int64, title string) (bool, error)
	DeleteChat(chatID string, userID int64) (bool, error)
	CreateMessage(msg *store.Message) error
	GetMessagesByChatID(chatID string) ([]store.Message, error)
	GetLastNMessagesByChatID(chatID string, n int) ([]store.Message, error)
}

// Retriever finds stored chunks similar to a query. Satisfied by
// knowledge.Index.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]knowledge.Chunk, error)
}

// Completer is the LLM surface the chat service needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GenerateTitle(ctx context.Context, seed string) (string, error)
}

// ChatService runs the question answering path and owns session lifecycle.
type ChatService struct {
	sessions SessionStore
	index    Retriever
	llm      Completer
	topK     int
}

func NewChatService(sessions SessionStore, index Retriever, llm Completer, topK int) *ChatService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &ChatService{
		sessions: sessions,
		index:    index,
		llm:      llm,
		topK:     topK,
	}
}

type AnswerRequest struct {
	UserID    int64
	SessionID string // empty starts a new session
	Question  string

	// Optional metadata recorded on a lazily created session, describing
	// what the conversation is about. Ignored when SessionID is set.
	SourceTitle string
	SourceType  string
	SourceURL   *string
}

type AnswerResponse struct {
	Chat   *store.Chat
	Answer string
}

// Answer runs the full question path: resolve the session, replay recent
// history, retrieve similar chunks, ask the model and persist both sides of
// the exchange. Retrieval or model failures degrade to a canned apology;
// persistence failures are logged and never block the answer.
func (s *ChatService) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	chat, created, err := s.resolveChat(req)
	if err != nil {
		return nil, err
	}

	history := s.recentHistory(chat.ID)

	userMsg := store.Message{ChatID: chat.ID, Role: store.RoleUser, Content: req.Question}
	if err := s.sessions.CreateMessage(&userMsg); err != nil {
		log.Printf("Failed to store user message for chat %s: %v", chat.ID, err)
	}

	answer := s.generateAnswer(ctx, req.Question, history)

	assistantMsg := store.Message{ChatID: chat.ID, Role: store.RoleAssistant, Content: answer}
	if err := s.sessions.CreateMessage(&assistantMsg); err != nil {
		log.Printf("Failed to store assistant message for chat %s: %v", chat.ID, err)
	}

	// An explicitly supplied title stands; only the placeholder gets the
	// generated one.
	if created && req.SourceTitle == "" {
		go s.generateAndSaveTitle(chat.ID, req.UserID, req.Question)
	}

	return &AnswerResponse{Chat: chat, Answer: answer}, nil
}

func (s *ChatService) resolveChat(req AnswerRequest) (*store.Chat, bool, error) {
	if req.SessionID == "" {
		title := req.SourceTitle
		if title == "" {
			title = defaultChatTitle
		}
		sourceType := req.SourceType
		if sourceType == "" {
			sourceType = defaultSourceType
		}
		chat, err := s.sessions.CreateChat(req.UserID, title, sourceType, req.SourceURL)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create chat: %w", err)
		}
		return chat, true, nil
	}

	chat, err := s.sessions.GetChatByID(req.SessionID, req.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up chat: %w", err)
	}
	if chat == nil {
		return nil, false, fmt.Errorf("chat %s not found", req.SessionID)
	}
	return chat, false, nil
}

// recentHistory returns the last few messages oldest-first. A history read
// failure degrades to an empty history rather than failing the question.
func (s *ChatService) recentHistory(chatID string) []store.Message {
	msgs, err := s.sessions.GetLastNMessagesByChatID(chatID, historyWindow)
	if err != nil {
		log.Printf("Error getting chat history for chat %s: %v. Proceeding without history.", chatID, err)
		return nil
	}
	// The store returns newest-first; the prompt wants chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

func (s *ChatService) generateAnswer(ctx context.Context, question string, history []store.Message) string {
	chunks, err := s.index.Search(ctx, question, s.topK)
	if err != nil {
		log.Printf("Failed to retrieve context for question: %v", err)
		return apologyMessage
	}

	prompt := BuildPrompt(question, history, chunks)
	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		log.Printf("Failed to get LLM completion: %v", err)
		return apologyMessage
	}
	return answer
}

func (s *ChatService) generateAndSaveTitle(chatID string, userID int64, seed string) {
	title, err := s.llm.GenerateTitle(context.Background(), seed)
	if err != nil {
		log.Printf("Failed to generate title for chat %s: %v", chatID, err)
		return
	}
	if _, err := s.sessions.RenameChat(chatID, userID, title); err != nil {
		log.Printf("Failed to save generated title %q for chat %s: %v", title, chatID, err)
	}
}

// ListSessions returns the user's chats, newest first.
func (s *ChatService) ListSessions(userID int64) ([]store.Chat, error) {
	return s.sessions.GetChatsByUserID(userID)
}

// GetSession returns a chat and its full message history in chronological
// order, or (nil, nil, nil) when the chat does not exist.
func (s *ChatService) GetSession(chatID string, userID int64) (*store.Chat, []store.Message, error) {
	chat, err := s.sessions.GetChatByID(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, nil
	}

	messages, err := s.sessions.GetMessagesByChatID(chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for chat: %w", err)
	}
	return chat, messages, nil
}

// RenameSession sets a chat's title. Returns false when the chat does not
// exist for this user.
func (s *ChatService) RenameSession(chatID string, userID int64, title string) (bool, error) {
	if title == "" {
		return false, fmt.Errorf("title cannot be empty")
	}
	return s.sessions.RenameChat(chatID, userID, title)
}

// DeleteSession removes a chat and all of its messages. Returns false when
// the chat does not exist for this user.
func (s *ChatService) DeleteSession(chatID string, userID int64) (bool, error) {
	return s.sessions.DeleteChat(chatID, userID)
}
