package models

import (
	"github.com/google/uuid"
)

// TitleJob asks the worker pool to derive a short conversation title
// from the opening user message.
type TitleJob struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	FirstMessage   string    `json:"first_message"`
}

const TitleQueue = "queue:title-generation"
