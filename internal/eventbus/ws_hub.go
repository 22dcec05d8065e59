// ABOUTME: WebSocket hub bridging a Bus subscription to one gorilla/websocket connection per client.
// ABOUTME: The one concrete realization of spec.md §6's "WebSocket/event bus" embedded collaborator.
package eventbus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// wireEvent is the JSON shape written to the client for each bus Event.
type wireEvent struct {
	Topic   Topic `json:"topic"`
	Payload any   `json:"payload"`
}

// ServeWS upgrades r to a WebSocket connection, subscribes it to bus, and
// streams every published Event as one JSON object per frame until the
// connection closes or the request context is cancelled. If replay is
// non-nil, its events are written immediately after the subscription is
// established (before any live event can race ahead of it) — the
// hydrate-then-replay pattern new subscribers use instead of a history log.
func ServeWS(bus *Bus, replay func() []Event, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	if replay != nil {
		for _, evt := range replay() {
			if err := writeEvent(conn, evt); err != nil {
				return
			}
		}
	}

	go drainInbound(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, evt Event) error {
	data, err := json.Marshal(wireEvent{Topic: evt.Topic, Payload: evt.Payload})
	if err != nil {
		logger.Warn("event marshal failed", zap.Error(err))
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// drainInbound discards client-sent frames (this is a server-push-only
// stream) but must keep reading so gorilla/websocket processes control
// frames (pong, close) and detects a dropped connection.
func drainInbound(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
