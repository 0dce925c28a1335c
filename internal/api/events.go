package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is the envelope of every frame sent on the event stream.
type wsMessage struct {
	Type string `json:"type"` // "snapshot" or "event"
	Data any    `json:"data"`
}

// handleEvents streams the session's paced notifications over a
// websocket. The first frame is the current snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The listener runs on the dispatcher goroutine and must not block.
	events := make(chan domain.Event, wsBuffer)
	unsubscribe := sess.Subscribe(func(ev domain.Event) {
		select {
		case events <- ev:
		default:
			s.log.Warn("event stream full, dropping event",
				zap.String("uid", ev.UserID), zap.String("kind", string(ev.Kind)))
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	go readPump(conn, done)

	if err := writeFrame(conn, wsMessage{Type: "snapshot", Data: sess.Snapshot()}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			if err := writeFrame(conn, wsMessage{Type: "event", Data: ev}); err != nil {
				s.log.Debug("websocket write failed", zap.String("uid", sess.UserID()), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
