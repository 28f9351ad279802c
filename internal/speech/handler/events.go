package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/voicetyped/streamasr/pkg/events"
)

const (
	eventBufferSize   = 64
	eventWriteTimeout = 5 * time.Second
)

// StreamEvents handles GET /api/v1/streams/{id}/events. It upgrades to a
// websocket and forwards every event of the stream as a JSON envelope until
// the stream closes or the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		writeError(w, http.StatusNotImplemented, "event feed disabled")
		return
	}
	id := r.PathValue("id")

	// Subscribe before the upgrade so nothing emitted after the handshake
	// is missed.
	subID := xid.New().String()
	ch := h.publisher.Subscribe(subID, eventBufferSize)
	defer h.publisher.Unsubscribe(subID)

	if _, err := h.scheduler.Get(id); err != nil {
		writeStreamError(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.SessionID != id {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
			if env.Type == events.StreamClosed {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(2*time.Second))
				return
			}
		}
	}
}
