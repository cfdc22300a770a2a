package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	wire "livepoll/pkg/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	handleTimeout  = 10 * time.Second
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client represents a single WebSocket connection
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	id           string
	remoteIP     string
	dispatcher   *Dispatcher
	rateLimiter  *ClientRateLimiter
	connectedAt  time.Time
	lastActivity atomic.Int64
	logger       *WebSocketLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, id, remoteIP string, dispatcher *Dispatcher, sendBuffer int, logger *WebSocketLogger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	now := time.Now()
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		remoteIP:    remoteIP,
		dispatcher:  dispatcher,
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		connectedAt: now,
		logger:      logger,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.id, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.touch()

		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg wire.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("malformed message", c.id, zap.Error(err))
		c.sendError("malformed message")
		return
	}

	if !c.rateLimiter.Allow(msg.Type) {
		c.logger.Warn("rate limit exceeded", c.id, zap.String("msg_type", msg.Type))
		c.sendError("rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	c.dispatcher.Dispatch(ctx, c.id, msg)
}

func (c *Client) sendError(message string) {
	if err := c.hub.SendTo(c.id, wire.Error, message); err != nil {
		c.logger.Warn("error delivery failed", c.id, zap.Error(err))
	}
}

// writePump writes one frame per queued event. A closed send channel means
// the hub dropped the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(time.Unix(0, c.lastActivity.Load())) > pongWait*2 {
				c.logger.Info("client idle timeout", c.id)
				return
			}
		}
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
