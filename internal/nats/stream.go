package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "ZYEON"

	// SubjectPrefix is the prefix for all gateway subjects.
	SubjectPrefix = "zyeon"
)

// Session lifecycle events.
const (
	SessionStarted = "started"
	SessionEnded   = "ended"
)

// SessionEvent is the payload published on session lifecycle changes.
type SessionEvent struct {
	Event     string         `json:"event"`
	Session   *model.Session `json:"session"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher publishes persisted turns and session lifecycle events.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the stream when it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation turns and session lifecycle",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// TurnSubject returns the subject a user's turns are published on.
func TurnSubject(userID string) string {
	return fmt.Sprintf("%s.turns.%s", SubjectPrefix, token(userID))
}

// SessionSubject returns the subject for a session lifecycle event.
func SessionSubject(event string) string {
	return fmt.Sprintf("%s.sessions.%s", SubjectPrefix, token(event))
}

// PublishTurn publishes a persisted turn.
func (p *Publisher) PublishTurn(ctx context.Context, turn *model.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}
	if _, err := p.client.JetStream().Publish(ctx, TurnSubject(turn.UserID), data); err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	return nil
}

// PublishSession publishes a session lifecycle event.
func (p *Publisher) PublishSession(ctx context.Context, event string, session *model.Session) error {
	data, err := json.Marshal(SessionEvent{Event: event, Session: session, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if _, err := p.client.JetStream().Publish(ctx, SessionSubject(event), data); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
