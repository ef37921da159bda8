package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

// Chat is one persisted conversation thread. SourceType/SourceURL record what
// the conversation was started about ("general" when unspecified).
type Chat struct {
	ID         string    `json:"id"` // UUID
	UserID     int64     `json:"user_id"`
	Title      string    `json:"title"`
	SourceType string    `json:"source_type"`
	SourceURL  *string   `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message roles. Messages are append-only; ordering is by CreatedAt ascending.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        string    `json:"id"` // UUID
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
