// Package storetest holds a behaviour suite every store.Driver must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
)

// Run exercises driver through the Store facade. newDriver must return an
// empty driver for every call.
func Run(t *testing.T, newDriver func(t *testing.T) store.Driver) {
	t.Run("HistoryNewestFirstAndFiltered", func(t *testing.T) {
		testHistory(t, newDriver(t))
	})
	t.Run("StatsCountTurnsByType", func(t *testing.T) {
		testStats(t, newDriver(t))
	})
	t.Run("SessionLifecycle", func(t *testing.T) {
		testSessions(t, newDriver(t))
	})
	t.Run("UserActivityUpserts", func(t *testing.T) {
		testUsers(t, newDriver(t))
	})
	t.Run("CleanupDeletesOnlyOldTurns", func(t *testing.T) {
		testCleanup(t, newDriver(t))
	})
}

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore(driver store.Driver, now time.Time) *store.Store {
	return store.New(driver, nil, store.WithClock(func() time.Time { return now }))
}

func seed(t *testing.T, s *store.Store, n int, userID, sessionID, convID string, mt model.MessageType) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.CreateConversation(context.Background(), &model.Turn{
			ConversationID: convID,
			UserID:         userID,
			SessionID:      sessionID,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			UserMessage:    fmt.Sprintf("%s-q%d", userID, i),
			AIResponse:     fmt.Sprintf("%s-a%d", userID, i),
			MessageType:    mt,
			Metadata:       map[string]any{"model": "test-model"},
		})
		require.NoError(t, err)
	}
}

func testHistory(t *testing.T, d store.Driver) {
	ctx := context.Background()
	s := newStore(d, base)
	t.Cleanup(func() { _ = s.Close() })

	seed(t, s, 5, "user_a", "session_a", "conv_a", model.MessageTypeText)
	seed(t, s, 3, "user_b", "session_b", "conv_b", model.MessageTypeVoice)

	all := s.GetConversationHistory(ctx, model.HistoryFilter{UserID: "user_a"}, 10, 0)
	require.Len(t, all, 5)
	assert.Equal(t, "user_a-q4", all[0].UserMessage)
	assert.Equal(t, "user_a-q0", all[4].UserMessage)
	assert.Equal(t, "test-model", all[0].Metadata["model"])
	assert.NotEmpty(t, all[0].ID)

	page := s.GetConversationHistory(ctx, model.HistoryFilter{UserID: "user_a"}, 2, 2)
	require.Len(t, page, 2)
	assert.Equal(t, "user_a-q2", page[0].UserMessage)

	bySession := s.GetConversationHistory(ctx, model.HistoryFilter{SessionID: "session_b"}, 10, 0)
	require.Len(t, bySession, 3)
	assert.Equal(t, model.MessageTypeVoice, bySession[0].MessageType)

	byConv := s.GetConversationHistory(ctx, model.HistoryFilter{UserID: "user_b", ConversationID: "conv_a"}, 10, 0)
	assert.Empty(t, byConv)

	everything := s.GetConversationHistory(ctx, model.HistoryFilter{}, 0, 0)
	assert.Len(t, everything, 8)

	id, err := s.CreateConversation(ctx, &model.Turn{UserID: "user_c", UserMessage: "hi", AIResponse: "hello"})
	require.NoError(t, err)
	assert.Regexp(t, `^conv_\d+_[0-9a-f]{4}$`, id)
	generated := s.GetConversationHistory(ctx, model.HistoryFilter{ConversationID: id}, 10, 0)
	require.Len(t, generated, 1)
	assert.Equal(t, model.MessageTypeText, generated[0].MessageType)
}

func testStats(t *testing.T, d store.Driver) {
	ctx := context.Background()
	s := newStore(d, base)
	t.Cleanup(func() { _ = s.Close() })

	empty := s.GetConversationStats(ctx, "nobody")
	assert.Equal(t, 0, empty.TotalConversations)
	assert.Nil(t, empty.FirstConversation)

	seed(t, s, 3, "user_a", "session_a", "conv_a", model.MessageTypeText)
	seed(t, s, 2, "user_a", "session_a", "conv_b", model.MessageTypeVoice)
	seed(t, s, 1, "user_b", "session_b", "conv_c", model.MessageTypeRealtime)

	stats := s.GetConversationStats(ctx, "user_a")
	assert.Equal(t, 5, stats.TotalConversations)
	assert.Equal(t, 10, stats.TotalMessages)
	assert.Equal(t, 3, stats.TextMessages)
	assert.Equal(t, 2, stats.VoiceMessages)
	assert.Equal(t, 0, stats.RealtimeMessages)
	require.NotNil(t, stats.FirstConversation)
	require.NotNil(t, stats.LastConversation)
	assert.True(t, stats.FirstConversation.Equal(base), "first %v", stats.FirstConversation)
	assert.True(t, stats.LastConversation.Equal(base.Add(2*time.Minute)), "last %v", stats.LastConversation)

	global := s.GetConversationStats(ctx, "")
	assert.Equal(t, 6, global.TotalConversations)
	assert.Equal(t, 1, global.RealtimeMessages)
}

func testSessions(t *testing.T, d store.Driver) {
	ctx := context.Background()
	start := newStore(d, base)
	t.Cleanup(func() { _ = start.Close() })

	require.NoError(t, start.CreateSession(ctx, "session_1", "user_1", map[string]string{"transport": "websocket"}))
	err := start.CreateSession(ctx, "session_1", "user_1", nil)
	require.ErrorIs(t, err, store.ErrSessionExists)

	sess, err := start.GetSession(ctx, "session_1")
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	assert.Nil(t, sess.EndedAt)
	assert.Equal(t, "websocket", sess.Metadata["transport"])

	firstEnd := base.Add(time.Hour)
	require.NoError(t, newStore(d, firstEnd).EndSession(ctx, "session_1"))
	require.NoError(t, newStore(d, firstEnd.Add(time.Hour)).EndSession(ctx, "session_1"))

	sess, err = start.GetSession(ctx, "session_1")
	require.NoError(t, err)
	assert.False(t, sess.IsActive)
	require.NotNil(t, sess.EndedAt)
	assert.True(t, sess.EndedAt.Equal(firstEnd), "ended_at keeps the first close: %v", sess.EndedAt)

	err = start.EndSession(ctx, "session_missing")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func testUsers(t *testing.T, d store.Driver) {
	ctx := context.Background()
	s := newStore(d, base)
	t.Cleanup(func() { _ = s.Close() })

	_, err := s.GetUser(ctx, "user_new")
	require.ErrorIs(t, err, store.ErrUserNotFound)

	require.NoError(t, s.UpdateUserActivity(ctx, "user_new"))
	u, err := s.GetUser(ctx, "user_new")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultUserName, u.Name)
	assert.True(t, u.CreatedAt.Equal(base))

	later := base.Add(10 * time.Minute)
	s2 := newStore(d, later)
	require.NoError(t, s2.UpsertUser(ctx, &store.UpsertUser{UserID: "user_new", Email: "a@example.com", Name: "Ada"}))
	require.NoError(t, s2.UpdateUserActivity(ctx, "user_new"))

	u, err = s.GetUser(ctx, "user_new")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "a@example.com", u.Email)
	assert.True(t, u.CreatedAt.Equal(base))
	assert.True(t, u.LastActive.Equal(later))
}

func testCleanup(t *testing.T, d store.Driver) {
	ctx := context.Background()
	s := newStore(d, base)
	t.Cleanup(func() { _ = s.Close() })

	seed(t, s, 4, "user_a", "session_a", "conv_a", model.MessageTypeText)

	// Cutoff lands after the first two turns.
	cleaner := newStore(d, base.Add(90*time.Second).Add(24*time.Hour))
	n, err := cleaner.CleanupOldConversations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left := s.GetConversationHistory(ctx, model.HistoryFilter{UserID: "user_a"}, 10, 0)
	require.Len(t, left, 2)
	assert.Equal(t, "user_a-q3", left[0].UserMessage)
}
