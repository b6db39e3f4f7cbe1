package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tunesync/core/syncstate"
	"tunesync/logger"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type syncChangeMessage struct {
	TrackID string `json:"trackId"`
	State   string `json:"state"`
}

// SyncFeedHandler pushes broadcaster change events to the peer as JSON
// until the connection goes away. Writes happen on a single goroutine;
// subscriber callbacks only enqueue.
func (h *APIHandler) SyncFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	logger.Debug("sync feed client connected", logger.String("client_id", clientID))

	changes := make(chan syncstate.Change, 64)
	unsubscribe := h.states.Subscribe(func(ch syncstate.Change) {
		select {
		case changes <- ch:
		default:
			// slow client, drop the event; the state endpoint catches it up
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("sync feed client disconnected", logger.String("client_id", clientID))
			return
		case ch := <-changes:
			msg := syncChangeMessage{
				TrackID: ch.TrackID,
				State:   ch.State.String(),
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("sync feed write failed",
					logger.String("client_id", clientID),
					logger.ErrorField(err))
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
