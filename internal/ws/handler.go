// Package ws exposes the notification channel over a websocket. A client
// attaches with the channel token it received when joining; from then on it
// only receives pushed payloads (inbound frames are read and discarded so
// pings keep the connection alive).
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/partydeck/hangout-backend/internal/hub"
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}

		outbox := make(chan []byte, 8)
		channelID, ok := h.Attach(token, outbox)
		if !ok {
			http.Error(w, "unknown channel token", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			h.Detach(channelID, outbox)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		defer h.Detach(channelID, outbox)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for payload := range outbox {
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					cancel()
					log.Debug("notification write failed",
						zap.String("channel_id", channelID), zap.Error(err))
					return
				}
				cancel()
			}
		}()

		// Reader loop: clients don't send anything meaningful, but reading
		// surfaces closes and keeps the connection healthy.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}
		}
	}
}
