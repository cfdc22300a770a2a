package server

import (
	"context"
	"net/http"
	"time"

	"livepoll/internal/services"
	"livepoll/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const recoveryTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub        *Hub
	dispatcher *Dispatcher
	recovery   *services.RecoveryService
	limiter    *ConnectionRateLimiter
	sendBuffer int
	logger     *WebSocketLogger
}

type WebSocketOptions struct {
	SendBuffer           int
	MaxConnectsPerMinute int
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, dispatcher *Dispatcher, recovery *services.RecoveryService, opts WebSocketOptions, logger *WebSocketLogger) *WebSocketHandler {
	if logger == nil {
		logger = NewWebSocketLogger()
	}
	return &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
		recovery:   recovery,
		limiter:    NewConnectionRateLimiter(opts.MaxConnectsPerMinute),
		sendBuffer: opts.SendBuffer,
		logger:     logger,
	}
}

// Limiter exposes the per-IP limiter so its cleanup loop can be started.
func (h *WebSocketHandler) Limiter() *ConnectionRateLimiter {
	return h.limiter
}

// Handle upgrades HTTP to WebSocket. The client is registered before
// recovery runs so no broadcast emitted meanwhile is missed.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	ip := c.ClientIP()
	if !h.limiter.AllowConnection(ip) {
		h.logger.Warn("connection rate limit exceeded", "", zap.String("ip", ip))
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("too many connections", "RATE_LIMITED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "", err)
		return
	}

	client := NewClient(h.hub, conn, uuid.NewString(), ip, h.dispatcher, h.sendBuffer, h.logger)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("registration refused", client.id, zap.Error(err))
		conn.Close()
		return
	}

	go client.writePump()

	ctx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
	if err := h.recovery.Recover(ctx, client.id); err != nil {
		h.logger.Error("state recovery failed", client.id, err)
	}
	cancel()

	go client.readPump()
}
