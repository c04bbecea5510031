package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation represents a chat conversation
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message represents a message in a conversation
type Message struct {
	ID             uuid.UUID `json:"-"`
	ConversationID uuid.UUID `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"-"`
}

// ChatMessage is a single role-tagged entry sent to a completion provider
type ChatMessage struct {
	Role    Role
	Content string
}

// ReplyRequest is the request body for POST /api/reply.
// Message is a pointer so that an empty string is accepted while a missing field is not.
type ReplyRequest struct {
	Message        *string `json:"message" binding:"required"`
	ConversationID string  `json:"conversation_id"`
	Mode           string  `json:"mode"`
}

// ReplyType discriminates the two reply shapes
type ReplyType string

const (
	ReplyQuestions ReplyType = "questions"
	ReplyAnswer    ReplyType = "answer"
)

// Reply is the outcome of a turn: either clarifying questions or a final answer
type Reply struct {
	Type           ReplyType `json:"type"`
	Content        string    `json:"content"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// ConversationList is the response for GET /api/conversations
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// History is the response for GET /api/history/:conversation_id
type History struct {
	Messages []Message `json:"messages"`
}
