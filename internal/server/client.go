package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"vox-chat/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20
	sendBufferSize = 256
)

// Dispatcher is the realtime router as seen by the transport.
type Dispatcher interface {
	Connect(connID, remoteAddr string)
	Disconnect(connID string)
	Dispatch(connID string, raw []byte) error
}

// Rate limits per minute
type RateLimits struct {
	MaxTypingEvents    int
	MaxMessages        int
	MaxPresenceUpdates int
	MaxSignals         int
	MaxScreenFrames    int
	MaxOther           int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents:    120,
	MaxMessages:        120,
	MaxPresenceUpdates: 60,
	MaxSignals:         1200,
	MaxScreenFrames:    3600,
	MaxOther:           120,
}

type rateClass int

const (
	classTyping rateClass = iota
	classMessage
	classPresence
	classSignal
	classScreen
	classOther
)

func classify(event string) rateClass {
	switch event {
	case events.CmdTyping:
		return classTyping
	case events.CmdSendMessage, events.CmdEditMessage, events.CmdDeleteMessage,
		events.CmdAddReaction, events.CmdRemoveReaction:
		return classMessage
	case events.CmdUpdatePresence, events.CmdUpdateVoiceState:
		return classPresence
	case events.CmdWebRTCOffer, events.CmdWebRTCAnswer, events.CmdWebRTCCandidate:
		return classSignal
	case events.CmdScreenData:
		return classScreen
	default:
		return classOther
	}
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	limits     RateLimits
	tokens     map[rateClass]int
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, now: time.Now}
	rl.refillTokens()
	rl.lastRefill = rl.now()
	return rl
}

func (rl *ClientRateLimiter) Allow(event string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	class := classify(event)
	if rl.tokens[class] > 0 {
		rl.tokens[class]--
		return true
	}
	return false
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.tokens = map[rateClass]int{
		classTyping:   rl.limits.MaxTypingEvents,
		classMessage:  rl.limits.MaxMessages,
		classPresence: rl.limits.MaxPresenceUpdates,
		classSignal:   rl.limits.MaxSignals,
		classScreen:   rl.limits.MaxScreenFrames,
		classOther:    rl.limits.MaxOther,
	}
}

// Client represents a single WebSocket connection
type Client struct {
	hub          *Hub
	router       Dispatcher
	conn         *websocket.Conn
	send         chan []byte
	connID       string
	remoteAddr   string
	rateLimiter  *ClientRateLimiter
	connectedAt  time.Time
	lastActivity atomic.Int64
	logger       *WebSocketLogger
}

func NewClient(hub *Hub, router Dispatcher, conn *websocket.Conn, connID, remoteAddr string, logger *WebSocketLogger) *Client {
	now := time.Now()
	c := &Client{
		hub:         hub,
		router:      router,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		connID:      connID,
		remoteAddr:  remoteAddr,
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		connectedAt: now,
		logger:      logger,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) readPump() {
	defer func() {
		if c.hub.unregister(c) {
			c.router.Disconnect(c.connID)
			c.logger.Info("client session ended", c.connID, c.remoteAddr,
				zap.Duration("duration", time.Since(c.connectedAt)))
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Error("websocket unexpected close", c.connID, c.remoteAddr, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var frame events.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Warn("malformed frame", c.connID, c.remoteAddr, zap.Error(err))
		return
	}
	if !c.rateLimiter.Allow(frame.Event) {
		c.logger.Warn("rate limit exceeded", c.connID, c.remoteAddr, zap.String("msg_type", frame.Event))
		return
	}
	if err := c.router.Dispatch(c.connID, message); err != nil {
		c.logger.Warn("command rejected", c.connID, c.remoteAddr,
			zap.String("msg_type", frame.Event), zap.Error(err))
	}
}

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
				c.logger.Info("client idle timeout", c.connID, c.remoteAddr)
				return
			}
		}
	}
}
