package service

import (
	"sort"
	"sync"
	"time"
)

// Connection is one live push-channel connection.
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	Transport    string    `json:"transport"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Registry tracks live connections by connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		now:   time.Now,
	}
}

// Add registers a connection, stamping ConnectedAt and LastActivity.
func (r *Registry) Add(c Connection) Connection {
	now := r.now().UTC()
	c.ConnectedAt = now
	c.LastActivity = now

	r.mu.Lock()
	r.conns[c.ID] = &c
	r.mu.Unlock()
	return c
}

// Remove unregisters a connection and returns what was stored.
func (r *Registry) Remove(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, id)
	return *c, true
}

// Touch refreshes LastActivity and returns the updated connection.
func (r *Registry) Touch(id string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	c.LastActivity = r.now().UTC()
	return *c, true
}

// Get returns a connection without touching it.
func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns all connections ordered by connect time.
func (r *Registry) List() []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, *c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
