package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zyeon-ai/realtime-gateway/internal/model"
)

// ServeSSE streams broadcast events to listeners that cannot open a
// websocket. It is receive-only and does not open a session.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	c, ok := h.register(TransportSSE)
	if !ok {
		http.Error(w, `{"error":"server shutting down"}`, http.StatusServiceUnavailable)
		return
	}
	defer h.release()
	defer h.unregister(c)

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, flusher, model.EventConnected, map[string]string{"status": "connected"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("SSE client disconnected", zap.String("connection_id", c.id))
			return
		case <-c.done:
			return
		case data := <-c.send:
			var ev inbound
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			if err := writeRawSSE(w, flusher, string(ev.Event), ev.Data); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := writeSSE(w, flusher, model.EventHeartbeat, model.HeartbeatEvent{Timestamp: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event model.EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeRawSSE(w, flusher, string(event), payload)
}

func writeRawSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
