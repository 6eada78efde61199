package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one turn in a conversation. Order is chronological and
// is the only turn-taking signal; the server never enforces alternation.
type ChatMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary is the sidebar view of a conversation.
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatRequest is the relay endpoint payload: the full history, oldest
// first, with the newest user message last.
type ChatRequest struct {
	Messages []TurnMessage `json:"messages"`
}

// TurnMessage is the wire shape of one history entry.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WSMessage is the envelope pushed to connected browser tabs.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ConversationUpdate notifies open tabs that a conversation changed
// (new message appended or title generated).
type ConversationUpdate struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
}
