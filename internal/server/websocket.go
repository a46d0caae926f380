package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/neo/battlearena/internal/logging"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = (wsPongWait * 9) / 10
	wsBuffer       = 32
)

// handleBattleWebSocket streams lifecycle events to one client until it
// disconnects, falls behind, or the broadcaster closes. Nothing is replayed
// for late joiners.
func (s *Server) handleBattleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn("Failed to upgrade connection", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer ws.Close()

	sub := s.events.Subscribe(wsBuffer)
	defer sub.Unsubscribe()

	logging.LogBroadcastEvent("client_connected", map[string]interface{}{
		"remote_addr": c.ClientIP(),
		"subscribers": s.events.SubscriberCount(),
	})

	// Reads only serve to notice the client going away and to process pongs
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logging.Debug("WebSocket read error", map[string]interface{}{"error": err.Error()})
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			logging.LogBroadcastEvent("client_disconnected", map[string]interface{}{
				"remote_addr": c.ClientIP(),
			})
			return

		case ev, ok := <-sub.Events():
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				logging.Debug("Failed to write event", map[string]interface{}{
					"type":  ev.Type,
					"error": err.Error(),
				})
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
