// Package model defines data structures for the assistant gateway.
package model

import (
	"time"
)

// MessageType tags the entry path a turn arrived on.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeRealtime MessageType = "realtime"
)

// Turn is one user message / assistant response pair. Immutable once stored.
type Turn struct {
	ID             string         `json:"id,omitempty" bson:"_id,omitempty"`
	ConversationID string         `json:"conversation_id" bson:"conversation_id"`
	UserID         string         `json:"user_id" bson:"user_id"`
	SessionID      string         `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
	UserMessage    string         `json:"user_message" bson:"user_message"`
	AIResponse     string         `json:"ai_response" bson:"ai_response"`
	MessageType    MessageType    `json:"message_type" bson:"message_type"`
	Metadata       map[string]any `json:"metadata" bson:"metadata"`
}

// User is an identity record created lazily on first activity.
type User struct {
	UserID     string    `json:"user_id" bson:"user_id"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	Name       string    `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
	LastActive time.Time `json:"last_active" bson:"last_active"`
}

// Session groups the turns of one realtime connection.
type Session struct {
	SessionID string            `json:"session_id" bson:"session_id"`
	UserID    string            `json:"user_id" bson:"user_id"`
	IsActive  bool              `json:"is_active" bson:"is_active"`
	Metadata  map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// ConversationStats aggregates stored turns.
type ConversationStats struct {
	TotalConversations int `json:"total_conversations"`
	// TotalMessages counts one user and one assistant message per turn.
	TotalMessages     int        `json:"total_messages"`
	TextMessages      int        `json:"text_messages"`
	VoiceMessages     int        `json:"voice_messages"`
	RealtimeMessages  int        `json:"realtime_messages"`
	FirstConversation *time.Time `json:"first_conversation"`
	LastConversation  *time.Time `json:"last_conversation"`
}

// Add folds one turn into the aggregate.
func (s *ConversationStats) Add(t Turn) {
	s.TotalConversations++
	s.TotalMessages += 2
	switch t.MessageType {
	case MessageTypeText:
		s.TextMessages++
	case MessageTypeVoice:
		s.VoiceMessages++
	case MessageTypeRealtime:
		s.RealtimeMessages++
	}
	ts := t.Timestamp
	if s.FirstConversation == nil || ts.Before(*s.FirstConversation) {
		s.FirstConversation = &ts
	}
	if s.LastConversation == nil || ts.After(*s.LastConversation) {
		last := ts
		s.LastConversation = &last
	}
}

// HistoryFilter selects turns by any combination of ids. Empty fields are ignored.
type HistoryFilter struct {
	UserID         string
	SessionID      string
	ConversationID string
}

// Chronological returns a copy of newest-first turns ordered oldest-first.
func Chronological(newestFirst []Turn) []Turn {
	out := make([]Turn, len(newestFirst))
	for i, t := range newestFirst {
		out[len(newestFirst)-1-i] = t
	}
	return out
}
