package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/voice-assistant/internal/conversation"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// The API serves a single local session; origins are not restricted
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams controller events as JSON text frames. The first
// two frames carry the current state and transcript.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	events, unsubscribe := s.conv.Subscribe()
	defer unsubscribe()

	logger := s.logger.With().Str("remote_addr", r.RemoteAddr).Logger()
	logger.Debug().Msg("Event stream connected")

	// Reader: consume control frames and notice when the client goes away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("Event stream read error")
				}
				return
			}
		}
	}()

	st := s.conv.Status()
	initial := []conversation.Event{
		{Type: conversation.EventState, State: &st},
		{Type: conversation.EventTranscript, Messages: s.conv.Messages()},
	}
	for _, ev := range initial {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "conversation closed"))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug().Err(err).Msg("Event stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			logger.Debug().Msg("Event stream disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev conversation.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
