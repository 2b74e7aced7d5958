// Package store is the persistence boundary for turns, users and sessions.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
)

var (
	// ErrNoStore is returned by write paths when no driver is configured.
	ErrNoStore = errors.New("conversation store not configured")
	// ErrSessionNotFound is returned when ending or reading an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session id twice.
	ErrSessionExists = errors.New("session already exists")
	// ErrUserNotFound is returned by GetUser for unknown ids.
	ErrUserNotFound = errors.New("user not found")
)

const (
	// DefaultHistoryLimit applies when a caller passes no limit.
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps any single history read.
	MaxHistoryLimit = 100
)

// Store wraps a Driver with id generation, bounds and the "unavailable
// means empty" read contract.
type Store struct {
	driver Driver
	logger *logger.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store. driver may be nil when no persistence is configured.
func New(driver Driver, log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Store{
		driver: driver,
		logger: log.Named("store"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a driver is configured.
func (s *Store) Available() bool {
	return s != nil && s.driver != nil
}

// Ping checks the driver.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Available() {
		return ErrNoStore
	}
	return s.driver.Ping(ctx)
}

// Close releases the driver.
func (s *Store) Close() error {
	if !s.Available() {
		return nil
	}
	return s.driver.Close()
}

// CreateConversation inserts one immutable turn and returns its conversation
// id, generating one when absent. Storage errors propagate.
func (s *Store) CreateConversation(ctx context.Context, turn *model.Turn) (string, error) {
	if !s.Available() {
		return "", ErrNoStore
	}
	if turn.UserID == "" {
		return "", errors.New("turn user id is required")
	}

	t := *turn
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	}
	if t.ConversationID == "" {
		t.ConversationID = model.NewConversationID(t.Timestamp)
	}
	if t.MessageType == "" {
		t.MessageType = model.MessageTypeText
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}

	created, err := s.driver.CreateTurn(ctx, &t)
	if err != nil {
		return "", fmt.Errorf("failed to create turn: %w", err)
	}
	return created.ConversationID, nil
}

// GetConversationHistory returns up to limit turns newest first. It never
// fails: an unavailable store or a driver error yields an empty slice.
func (s *Store) GetConversationHistory(ctx context.Context, filter model.HistoryFilter, limit, offset int) []model.Turn {
	out := []model.Turn{}
	if !s.Available() {
		return out
	}

	turns, err := s.driver.ListTurns(ctx, &FindTurn{
		UserID:         filter.UserID,
		SessionID:      filter.SessionID,
		ConversationID: filter.ConversationID,
		Limit:          ClampLimit(limit),
		Offset:         max(offset, 0),
	})
	if err != nil {
		s.logger.Warn("failed to list turns", zap.Error(err))
		return out
	}
	for _, t := range turns {
		out = append(out, *t)
	}
	return out
}

// GetConversationStats aggregates turns, optionally for one user. It returns
// a zeroed aggregate when the store is unavailable or empty.
func (s *Store) GetConversationStats(ctx context.Context, userID string) model.ConversationStats {
	if !s.Available() {
		return model.ConversationStats{}
	}
	stats, err := s.driver.TurnStats(ctx, userID)
	if err != nil || stats == nil {
		if err != nil {
			s.logger.Warn("failed to aggregate turns", zap.Error(err))
		}
		return model.ConversationStats{}
	}
	return *stats
}

// CreateSession records a new active session.
func (s *Store) CreateSession(ctx context.Context, sessionID, userID string, metadata map[string]string) error {
	if !s.Available() {
		return ErrNoStore
	}
	now := s.now().UTC()
	_, err := s.driver.CreateSession(ctx, &model.Session{
		SessionID: sessionID,
		UserID:    userID,
		IsActive:  true,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession marks a session inactive. Ending an ended session is a no-op
// that keeps the first ended_at.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if !s.Available() {
		return ErrNoStore
	}
	if _, err := s.driver.EndSession(ctx, sessionID, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// GetSession reads one session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if !s.Available() {
		return nil, ErrNoStore
	}
	return s.driver.GetSession(ctx, sessionID)
}

// UpdateUserActivity touches last_active, creating the user if absent.
func (s *Store) UpdateUserActivity(ctx context.Context, userID string) error {
	return s.UpsertUser(ctx, &UpsertUser{UserID: userID})
}

// UpsertUser creates or updates a user record.
func (s *Store) UpsertUser(ctx context.Context, upsert *UpsertUser) error {
	if !s.Available() {
		return ErrNoStore
	}
	if strings.TrimSpace(upsert.UserID) == "" {
		return errors.New("user id is required")
	}
	u := *upsert
	if u.LastActive.IsZero() {
		u.LastActive = s.now().UTC()
	}
	if _, err := s.driver.UpsertUser(ctx, &u); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser reads one user.
func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if !s.Available() {
		return nil, ErrNoStore
	}
	return s.driver.GetUser(ctx, userID)
}

// CleanupOldConversations deletes turns older than retentionDays and returns
// how many were removed. This is the only deletion path for turns.
func (s *Store) CleanupOldConversations(ctx context.Context, retentionDays int) (int64, error) {
	if !s.Available() {
		return 0, ErrNoStore
	}
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative: %d", retentionDays)
	}
	cutoff := s.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := s.driver.DeleteTurnsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old turns: %w", err)
	}
	s.logger.Info("cleaned up old conversations",
		zap.Int64("deleted", n),
		zap.Int("retention_days", retentionDays),
	)
	return n, nil
}

// ClampLimit applies the default and maximum history page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
