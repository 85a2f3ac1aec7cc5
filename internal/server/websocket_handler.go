package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub    *Hub
	router Dispatcher
	logger *WebSocketLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, router Dispatcher, logger *WebSocketLogger) *WebSocketHandler {
	if logger == nil {
		logger = hub.logger
	}
	return &WebSocketHandler{
		hub:    hub,
		router: router,
		logger: logger,
	}
}

// Handle upgrades HTTP to WebSocket. The connection is registered with the
// hub before the router sees it, so the init snapshot has somewhere to go.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "", c.Request.RemoteAddr, err)
		return
	}

	connID := uuid.New().String()
	client := NewClient(h.hub, h.router, conn, connID, c.Request.RemoteAddr, h.logger)

	h.hub.register(client)
	h.router.Connect(connID, c.Request.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
