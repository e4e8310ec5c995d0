package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SubscribeFunc attaches an observer for projectID, or for every project when
// projectID is empty.
type SubscribeFunc func(ctx context.Context, projectID string) (*Observer, error)

// WebSocketHandler streams events as JSON text frames. The optional
// "project_id" query parameter restricts the feed to one project.
func (b *Bus) WebSocketHandler(logger *slog.Logger) http.HandlerFunc {
	return WebSocketHandler(func(_ context.Context, projectID string) (*Observer, error) {
		return b.Subscribe(projectID), nil
	}, logger)
}

func WebSocketHandler(subscribe SubscribeFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := subscribe(r.Context(), r.URL.Query().Get("project_id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)

			return
		}
		defer o.Close()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", slog.Any("error", err))

			return
		}
		defer conn.Close()

		ctx := r.Context()
		closed := make(chan struct{})

		// The read side only exists to observe pongs and the peer closing.
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					o.Close()

					return
				}
			}
		}()

		events := make(chan Event)
		go func() {
			defer close(events)
			for {
				ev, err := o.Next(ctx)
				if err != nil {
					return
				}
				select {
				case events <- ev:
				case <-closed:
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case ev, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))

					return
				}
				msg, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
}
