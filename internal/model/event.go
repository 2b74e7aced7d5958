package model

import (
	"time"
)

// EventType names a push-channel event.
type EventType string

const (
	// client -> server
	EventSendMessage EventType = "send_message"

	// server -> client
	EventConnected          EventType = "connected"
	EventAIResponse         EventType = "ai_response"
	EventError              EventType = "error"
	EventVoiceInputReceived EventType = "voice_input_received"
	EventVoiceStatus        EventType = "voice_status"
	EventSpeakingStatus     EventType = "speaking_status"
	EventVoiceError         EventType = "voice_error"
	EventSpeechAudio        EventType = "speech_audio"
	EventHeartbeat          EventType = "heartbeat"
)

// Event is the envelope carried over the push channel in both directions.
type Event struct {
	Event EventType `json:"event"`
	Data  any       `json:"data,omitempty"`
}

// ConnectedEvent is sent once after a push connection is registered.
type ConnectedEvent struct {
	Status    string          `json:"status"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Features  map[string]bool `json:"features"`
}

// AIResponseEvent carries a generated response.
type AIResponseEvent struct {
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Type      MessageType    `json:"type"`
	Metadata  map[string]any `json:"metadata"`
}

// ErrorEvent is a user-facing error acknowledgment.
type ErrorEvent struct {
	Message string `json:"message"`
}

// VoiceInputEvent echoes a recognized utterance.
type VoiceInputEvent struct {
	Text string `json:"text"`
}

// VoiceStatusEvent reports the listening flag.
type VoiceStatusEvent struct {
	Listening bool `json:"listening"`
}

// SpeakingStatusEvent reports speech synthesis progress.
type SpeakingStatusEvent struct {
	Speaking bool   `json:"speaking"`
	Text     string `json:"text,omitempty"`
}

// VoiceErrorEvent reports a recognition or synthesis failure.
type VoiceErrorEvent struct {
	Error string `json:"error"`
}

// SpeechAudioEvent carries synthesized speech for client playback. Data is
// base64 in JSON.
type SpeechAudioEvent struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// HeartbeatEvent keeps idle SSE listeners alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
