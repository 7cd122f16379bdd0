package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ai-live-hints-service/internal/service/stt"
)

const (
	defaultSource = "remote"
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type controlMessage struct {
	Type string `json:"type"`
}

// audioSocket receives binary LINEAR16 frames for one source and pushes
// answer events for the session back to the client. A text message
// {"type":"clear"} clears the session.
func (h *handlers) audioSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Open == nil {
		writeError(w, http.StatusNotImplemented, "audio ingestion is disabled")
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = defaultSource
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("source", source).Str("remote", r.RemoteAddr).Logger()
	handler := h.deps.Open(r.Context(), source)
	defer h.deps.Session.Release(source, handler)

	hints, unsubscribe := h.deps.Session.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range hints {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("Failed to push answer event")
			}
		}
	}()
	defer func() {
		unsubscribe()
		wg.Wait()
	}()

	logger.Info().Msg("Audio socket connected")
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Audio socket closed unexpectedly")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch mt {
		case websocket.BinaryMessage:
			if _, err := handler.Enqueue(stt.FromLinear16(data)); err != nil {
				logger.Warn().Err(err).Msg("Audio handler closed")
				return
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Debug().Err(err).Msg("Ignoring malformed control message")
				continue
			}
			if msg.Type == "clear" {
				h.deps.Session.ClearSession()
			}
		}
	}
	logger.Info().Interface("stats", handler.Stats()).Msg("Audio socket disconnected")
}
