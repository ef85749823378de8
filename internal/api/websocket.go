package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"optioncore/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// monitorWebsocket forwards C24's AlertRouter push messages (TopicMonitorPush
// on the low-stakes async Bus) to a connected dashboard. A slow or absent
// client never blocks the trading process: Bus.Publish drops on a full
// buffer rather than waiting.
func (s *Server) monitorWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.PushBus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"push bus not ready"}`))
		return
	}

	stream, unsub := s.PushBus.Subscribe(events.TopicMonitorPush, 100)
	defer unsub()

	for msg := range stream {
		if err := conn.WriteJSON(gin.H{"message": msg}); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
