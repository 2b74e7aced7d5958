package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

func TestUnavailableStoreReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)

	assert.False(t, s.Available())

	history := s.GetConversationHistory(ctx, model.HistoryFilter{UserID: "user_x"}, 10, 0)
	require.NotNil(t, history)
	assert.Empty(t, history)

	stats := s.GetConversationStats(ctx, "user_x")
	assert.Equal(t, model.ConversationStats{}, stats)

	_, err := s.CreateConversation(ctx, &model.Turn{UserID: "user_x"})
	require.ErrorIs(t, err, ErrNoStore)
	require.ErrorIs(t, s.CreateSession(ctx, "s", "u", nil), ErrNoStore)
	require.ErrorIs(t, s.EndSession(ctx, "s"), ErrNoStore)
	require.ErrorIs(t, s.UpdateUserActivity(ctx, "u"), ErrNoStore)
	require.ErrorIs(t, s.Ping(ctx), ErrNoStore)
	require.NoError(t, s.Close())

	_, err = s.CleanupOldConversations(ctx, 30)
	require.ErrorIs(t, err, ErrNoStore)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(-3))
	assert.Equal(t, 25, ClampLimit(25))
	assert.Equal(t, MaxHistoryLimit, ClampLimit(500))
}
