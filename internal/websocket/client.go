package websocket

import (
	"fmt"
	"sync"
	"time"

	"astroconnect/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Buffer size for client send channel
	sendBufferSize = 256
)

var newline = []byte{'\n'}

// TypingFunc is invoked when a client reports typing activity. The chat
// service uses it to drive the send-side debounce.
type TypingFunc func(sessionID, userID string, typing bool)

// Client represents a connected UI client
type Client struct {
	// WebSocket connection
	Conn *websocket.Conn

	// Hub that manages this client
	Hub *Hub

	// Buffered channel of outbound messages
	Send chan []byte

	// Client information
	UserID    string
	SessionID string
	IP        string
	UserAgent string

	// Connection state
	ConnectedAt time.Time
	LastPing    time.Time
	LastPong    time.Time

	// Rate limiting
	MessageCount int
	LastMessage  time.Time

	// Typing callback, set by the handler at upgrade time
	OnTyping TypingFunc

	// Synchronization
	mu sync.RWMutex
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, hub *Hub, userID string) *Client {
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		LastPong:    time.Now(),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
		c.logDisconnection()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.LastPong = time.Now()
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logConnection()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		if !c.checkRateLimit() {
			c.sendError("Rate limit exceeded")
			continue
		}

		wsMsg, err := FromJSON(message)
		if err != nil {
			c.sendError(fmt.Sprintf("Invalid message format: %v", err))
			continue
		}
		wsMsg.SetFrom(c.UserID)
		if c.GetSessionID() != "" {
			wsMsg.SetSessionID(c.GetSessionID())
		}

		if err := wsMsg.Validate(); err != nil {
			c.sendError(fmt.Sprintf("Message validation failed: %v", err))
			continue
		}

		c.handleMessage(wsMsg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.LastPing = time.Now()
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes inbound client messages. Chat content travels
// over the HTTP API so the optimistic cache stays authoritative; the
// socket only carries typing activity and heartbeats upstream.
func (c *Client) handleMessage(msg *WSMessage) {
	switch msg.Type {
	case MessageTypeTyping, MessageTypeStopTyping:
		c.handleTypingIndicator(msg)
	case MessageTypeHeartbeat:
		c.handleHeartbeat()
	default:
		c.sendError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// handleTypingIndicator forwards typing activity into the debouncer
func (c *Client) handleTypingIndicator(msg *WSMessage) {
	sessionID := c.GetSessionID()
	if sessionID == "" {
		return
	}

	if c.OnTyping != nil {
		c.OnTyping(sessionID, c.UserID, msg.Type == MessageTypeTyping)
	}
}

// handleHeartbeat responds with server time
func (c *Client) handleHeartbeat() {
	response := NewWSMessage(MessageTypeHeartbeat, "", map[string]interface{}{
		"server_time": time.Now(),
		"uptime":      time.Since(c.ConnectedAt).Seconds(),
	})

	c.SendMessage(response)
}

// checkRateLimit checks if the client is within rate limits
func (c *Client) checkRateLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if now.Sub(c.LastMessage) > time.Minute {
		c.MessageCount = 0
	}

	c.LastMessage = now
	c.MessageCount++

	// Typing frames are frequent; 120 per minute covers a fast typist
	return c.MessageCount <= 120
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg *WSMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	errorMsg := NewWSMessage(MessageTypeError, message, nil)
	c.SendMessage(errorMsg)
}

// SetSessionID sets the session room for the client
func (c *Client) SetSessionID(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionID = sessionID
}

// GetSessionID gets the session room for the client
func (c *Client) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SessionID
}

// logConnection logs client connection
func (c *Client) logConnection() {
	logger.LogUserAction(c.UserID, "websocket_connected", map[string]interface{}{
		"ip":         c.IP,
		"user_agent": c.UserAgent,
	})
}

// logDisconnection logs client disconnection
func (c *Client) logDisconnection() {
	duration := time.Since(c.ConnectedAt)

	logger.LogUserAction(c.UserID, "websocket_disconnected", map[string]interface{}{
		"duration_seconds": duration.Seconds(),
		"message_count":    c.MessageCount,
		"session_id":       c.GetSessionID(),
	})
}
