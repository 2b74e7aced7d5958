package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

// inbound is a client frame. Data stays raw until the event is known.
type inbound struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServeWS upgrades the request and runs the connection until either side
// closes it. Each connection opens its own session for the resolved user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Headers set by earlier middleware, the identity cookie among them,
	// go out with the handshake.
	conn, err := h.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c, ok := h.register(TransportWebsocket)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer h.release()

	id := model.Identity{SessionID: model.NewSessionID()}
	if h.identity != nil {
		id.UserID = h.identity(r).UserID
	}
	if id.UserID == "" {
		id.UserID = model.NewUserID()
	}

	// The request context ends when the handler returns; the connection
	// outlives it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	var turns sync.WaitGroup
	defer func() {
		cancel()
		turns.Wait()
		h.unregister(c)
		h.handler.Disconnect(context.Background(), c.id)
		_ = conn.Close()
	}()

	go h.writeLoop(conn, c)

	h.deliver(c, h.handler.Connect(ctx, c.id, TransportWebsocket, id))

	h.readLoop(ctx, conn, c, &turns)
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client, turns *sync.WaitGroup) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in websocket read loop", zap.String("connection_id", c.id), zap.Any("panic", r))
		}
	}()

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.cfg.Heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.cfg.Heartbeat))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * h.cfg.Heartbeat))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.deliver(c, errorEvent("Invalid message format"))
			continue
		}

		switch msg.Event {
		case model.EventSendMessage:
			var req model.ChatRequest
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &req); err != nil {
					h.deliver(c, errorEvent("Invalid message format"))
					continue
				}
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				defer func() {
					if r := recover(); r != nil {
						h.logger.Error("panic handling message", zap.String("connection_id", c.id), zap.Any("panic", r))
						h.deliver(c, errorEvent("Error processing message"))
					}
				}()
				h.deliver(c, h.handler.HandleRealtimeMessage(ctx, c.id, req))
			}()
		default:
			h.deliver(c, errorEvent("Unknown event: "+string(msg.Event)))
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client) {
	ping := time.NewTicker(h.cfg.Heartbeat)
	defer ping.Stop()

	for {
		select {
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("websocket write failed, dropping connection", zap.String("connection_id", c.id), zap.Error(err))
				c.close()
				_ = conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				c.close()
				_ = conn.Close()
				return
			}
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
	}
}

func errorEvent(msg string) model.Event {
	return model.Event{Event: model.EventError, Data: model.ErrorEvent{Message: msg}}
}
