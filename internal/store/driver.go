package store

import (
	"context"
	"time"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

// Driver is the persistence backend behind Store. Implementations must be
// safe for concurrent use.
type Driver interface {
	Ping(ctx context.Context) error
	Close() error

	// Turn methods. ListTurns returns newest first.
	CreateTurn(ctx context.Context, create *model.Turn) (*model.Turn, error)
	ListTurns(ctx context.Context, find *FindTurn) ([]*model.Turn, error)
	TurnStats(ctx context.Context, userID string) (*model.ConversationStats, error)
	DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// User methods. UpsertUser creates the record when absent.
	UpsertUser(ctx context.Context, upsert *UpsertUser) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// Session methods. EndSession only transitions an active session and
	// returns the stored record either way.
	CreateSession(ctx context.Context, create *model.Session) (*model.Session, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// FindTurn selects turns. Empty ids are ignored.
type FindTurn struct {
	UserID         string
	SessionID      string
	ConversationID string
	Limit          int
	Offset         int
}

// UpsertUser updates activity for a user, creating it if needed. Empty
// Email and Name leave stored values untouched.
type UpsertUser struct {
	UserID     string
	Email      string
	Name       string
	LastActive time.Time
}

// DefaultUserName is assigned to users created without a name.
const DefaultUserName = "Anonymous User"
