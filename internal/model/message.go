package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatRequest is the body of POST /api/chat and the send_message push event.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ContextType    string `json:"context_type,omitempty"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Response    string         `json:"response"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        MessageType    `json:"type"`
	Metadata    map[string]any `json:"metadata"`
	Suggestions []string       `json:"suggestions"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
}

// Pagination describes a history page.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListConversationsResponse is the response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []Turn            `json:"conversations"`
	Total         int               `json:"total"`
	Stats         ConversationStats `json:"stats"`
	Pagination    Pagination        `json:"pagination"`
}

// SpeakRequest is the body of POST /api/speak.
type SpeakRequest struct {
	Text      string `json:"text"`
	Interrupt bool   `json:"interrupt"`
}

// VoiceSettingsRequest is the body of POST /api/voice/settings.
type VoiceSettingsRequest struct {
	Settings map[string]any `json:"settings"`
}
