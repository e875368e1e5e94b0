package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/internal/syncengine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	streamBacklog  = 16
	maxInboundSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type frameType string

const (
	frameMessages frameType = "messages"
	frameNotice   frameType = "notice"
)

type streamFrame struct {
	Type    frameType          `json:"type"`
	State   models.EngineState `json:"state,omitempty"`
	CanSend bool               `json:"can_send"`
	Data    any                `json:"data"`
}

// Stream pushes the full message list on every publish and one frame per
// notice. The socket closes when the session ends.
func (h *controller) Stream(c echo.Context) error {
	active, err := h.sessions.Current()
	if err != nil {
		return err
	}
	engine := active.Engine

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the request
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	send := make(chan []byte, streamBacklog)
	enqueue := func(f streamFrame) {
		data, err := json.Marshal(f)
		if err != nil {
			h.logger.Errorw("encode stream frame", "error", err)
			return
		}
		select {
		case send <- data:
		default:
			// a slow reader misses intermediate lists; the next frame carries
			// the full state again
			h.logger.Warnw("stream backlog full, dropping frame", "type", f.Type)
		}
	}

	enqueue(streamFrame{Type: frameMessages, State: engine.State(), CanSend: engine.CanSend(), Data: engine.Messages()})
	unsubscribe := engine.Subscribe(func(list []models.Message) {
		enqueue(streamFrame{Type: frameMessages, State: engine.State(), CanSend: engine.CanSend(), Data: list})
	})
	defer unsubscribe()
	unnotice := engine.Notices(func(n syncengine.Notice) {
		enqueue(streamFrame{Type: frameNotice, State: engine.State(), CanSend: engine.CanSend(), Data: n})
	})
	defer unnotice()

	closed := make(chan struct{})
	go readPump(conn, closed)

	h.logger.Infow("stream opened", "session_id", active.ID, "remote", c.RealIP())
	writePump(conn, send, closed, engine.Done())
	h.logger.Infow("stream closed", "session_id", active.ID)
	return nil
}

// readPump discards inbound frames and reports when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxInboundSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan []byte, closed <-chan struct{}, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		case <-closed:
			return
		}
	}
}
