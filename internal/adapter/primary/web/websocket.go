package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"micguard/internal/adapter/secondary/repository"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12
)

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

func (s *Server) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	msgs, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go s.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: "status", Data: repository.NewStatusView(s.status.Snapshot())}); err != nil {
		s.log.Debugf("ws initial write failed: %v", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugf("ws ping failed: %v", err)
				return
			}
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debugf("ws write failed: %v", err)
				return
			}
		}
	}
}

// startReader drains incoming frames so control messages are processed and closure is seen.
func (s *Server) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
