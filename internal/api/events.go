package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// eventBuffer is the per-subscriber channel depth. A slow websocket
// client misses events rather than blocking the publishers.
const eventBuffer = 64

// pingPeriod keeps idle connections alive through proxies.
const pingPeriod = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds localhost; browser origin checks add nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams every bus event as
// a JSON object until the client hangs up.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(eventBuffer)
	defer s.bus.Unsubscribe(ch)

	// Reader loop exists only to notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	s.logger.Debug("event stream connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-done:
			return
		case e := <-ch:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
