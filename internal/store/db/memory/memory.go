// Package memory is an in-process Driver. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/internal/store"
)

// DB keeps turns, users and sessions in maps guarded by one lock.
type DB struct {
	mu       sync.RWMutex
	turns    []*model.Turn
	users    map[string]*model.User
	sessions map[string]*model.Session
}

var _ store.Driver = (*DB)(nil)

// New creates an empty in-memory driver.
func New() *DB {
	return &DB{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
	}
}

func (d *DB) Ping(context.Context) error { return nil }

func (d *DB) Close() error { return nil }

func (d *DB) CreateTurn(_ context.Context, create *model.Turn) (*model.Turn, error) {
	t := cloneTurn(create)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	d.mu.Lock()
	d.turns = append(d.turns, t)
	d.mu.Unlock()

	return cloneTurn(t), nil
}

func (d *DB) ListTurns(_ context.Context, find *store.FindTurn) ([]*model.Turn, error) {
	d.mu.RLock()
	var matched []*model.Turn
	for _, t := range d.turns {
		if matches(t, find) {
			matched = append(matched, t)
		}
	}
	d.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := min(find.Offset, total)
	end := total
	if find.Limit > 0 {
		end = min(start+find.Limit, total)
	}

	out := make([]*model.Turn, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, cloneTurn(t))
	}
	return out, nil
}

func (d *DB) TurnStats(_ context.Context, userID string) (*model.ConversationStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &model.ConversationStats{}
	for _, t := range d.turns {
		if userID == "" || t.UserID == userID {
			stats.Add(*t)
		}
	}
	return stats, nil
}

func (d *DB) DeleteTurnsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.turns[:0]
	var deleted int64
	for _, t := range d.turns {
		if t.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	d.turns = kept
	return deleted, nil
}

func (d *DB) UpsertUser(_ context.Context, upsert *store.UpsertUser) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[upsert.UserID]
	if !ok {
		u = &model.User{
			UserID:    upsert.UserID,
			Name:      store.DefaultUserName,
			CreatedAt: upsert.LastActive,
		}
		d.users[upsert.UserID] = u
	}
	if upsert.Email != "" {
		u.Email = upsert.Email
	}
	if upsert.Name != "" {
		u.Name = upsert.Name
	}
	u.LastActive = upsert.LastActive
	u.UpdatedAt = upsert.LastActive

	cp := *u
	return &cp, nil
}

func (d *DB) GetUser(_ context.Context, userID string) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *DB) CreateSession(_ context.Context, create *model.Session) (*model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[create.SessionID]; ok {
		return nil, store.ErrSessionExists
	}
	s := cloneSession(create)
	d.sessions[s.SessionID] = s
	return cloneSession(s), nil
}

func (d *DB) EndSession(_ context.Context, sessionID string, endedAt time.Time) (*model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	if s.IsActive {
		s.IsActive = false
		ended := endedAt
		s.EndedAt = &ended
		s.UpdatedAt = endedAt
	}
	return cloneSession(s), nil
}

func (d *DB) GetSession(_ context.Context, sessionID string) (*model.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func matches(t *model.Turn, find *store.FindTurn) bool {
	if find.UserID != "" && t.UserID != find.UserID {
		return false
	}
	if find.SessionID != "" && t.SessionID != find.SessionID {
		return false
	}
	if find.ConversationID != "" && t.ConversationID != find.ConversationID {
		return false
	}
	return true
}

func cloneTurn(t *model.Turn) *model.Turn {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func cloneSession(s *model.Session) *model.Session {
	cp := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cp.EndedAt = &ended
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
