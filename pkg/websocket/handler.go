package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The feed serves local dashboards; cross-origin viewers are fine
		return true
	},
}

// HandleWebSocket upgrades the connection and attaches the viewer to the hub
func HandleWebSocket(c *gin.Context, hub *Hub) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("failed to upgrade live feed connection", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, hub)
	hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
