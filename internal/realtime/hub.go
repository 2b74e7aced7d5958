// Package realtime is the push channel: a websocket endpoint carrying
// events both ways and an SSE endpoint mirroring broadcasts.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
	"github.com/zyeon-ai/realtime-gateway/pkg/metrics"
)

const (
	TransportWebsocket = "websocket"
	TransportSSE       = "sse"
)

// Handler receives connection lifecycle and inbound messages.
type Handler interface {
	Connect(ctx context.Context, connID, transport string, id model.Identity) model.Event
	Disconnect(ctx context.Context, connID string)
	HandleRealtimeMessage(ctx context.Context, connID string, req model.ChatRequest) model.Event
}

// IdentityFunc resolves the caller of an upgrade request.
type IdentityFunc func(r *http.Request) model.Identity

// Config tunes the hub.
type Config struct {
	SendBuffer     int
	Heartbeat      time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

// Hub tracks push clients and fans events out to them.
type Hub struct {
	handler  Handler
	identity IdentityFunc
	cfg      Config
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	// active counts connection handlers that have not finished their
	// disconnect work.
	active sync.WaitGroup
}

type client struct {
	id        string
	transport string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewHub creates a hub.
func NewHub(handler Handler, identity IdentityFunc, cfg Config, log *logger.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		handler:  handler,
		identity: identity,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger:  log.Named("realtime"),
		clients: make(map[string]*client),
	}
}

// Count returns the number of connected clients of every transport.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes ev once and queues it for every client. Clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Event)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client send buffer full, event dropped",
				zap.String("connection_id", c.id),
				zap.String("event", string(ev.Event)),
			)
		}
	}
}

// Close disconnects every client and waits until each connection handler
// has run its disconnect work, or until ctx is done.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.active.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain push connections: %w", ctx.Err())
	}
}

func (h *Hub) register(transport string) (*client, bool) {
	c := &client{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan []byte, h.cfg.SendBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c.id] = c
	h.active.Add(1)
	metrics.IncrementPushConnections(transport)
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
	metrics.DecrementPushConnections(c.transport)
}

// release marks a connection handler finished. Callers defer it right
// after a successful register so it runs after every other deferred step.
func (h *Hub) release() {
	h.active.Done()
}

// deliver queues data for one client, waiting until the client goes away.
func (h *Hub) deliver(c *client, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(ev.Event)), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}
