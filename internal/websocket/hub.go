package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"astroconnect/pkg/database"
	"astroconnect/pkg/logger"
)

// Hub maintains the set of connected UI clients and routes lifecycle
// events to them. Each user gets direct pushes for their own request;
// session rooms carry chat and typing events shared by both parties.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients organized by user ID
	userClients map[string]*Client

	// Clients organized by session ID
	sessionClients map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast messages to a specific session
	SessionBroadcast chan *SessionMessage

	// Broadcast messages to a specific user
	UserBroadcast chan *UserMessage

	// OnDisconnect, when set before Run, is invoked once a client's socket
	// is gone for good. Reconnect replacements do not trigger it.
	OnDisconnect func(userID, sessionID string)

	// Statistics
	stats *HubStats

	// Synchronization
	mu sync.RWMutex
}

// SessionMessage represents a message to be sent to a session room
type SessionMessage struct {
	SessionID string
	Message   *WSMessage
	Exclude   string // User ID to exclude from broadcast
}

// UserMessage represents a message to be sent to a user
type UserMessage struct {
	UserID  string
	Message *WSMessage
}

// HubStats contains hub statistics
type HubStats struct {
	TotalClients   int            `json:"total_clients"`
	OnlineUsers    int            `json:"online_users"`
	ActiveSessions int            `json:"active_sessions"`
	SessionStats   map[string]int `json:"session_stats"`
	LastUpdated    time.Time      `json:"last_updated"`
	mu             sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:          make(map[*Client]bool),
		userClients:      make(map[string]*Client),
		sessionClients:   make(map[string]map[*Client]bool),
		Register:         make(chan *Client),
		Unregister:       make(chan *Client),
		SessionBroadcast: make(chan *SessionMessage),
		UserBroadcast:    make(chan *UserMessage),
		stats: &HubStats{
			SessionStats: make(map[string]int),
			LastUpdated:  time.Now(),
		},
	}
}

// Run starts the hub and handles client registration/unregistration
func (h *Hub) Run() {
	go h.startPeriodicTasks()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case sessionMsg := <-h.SessionBroadcast:
			h.broadcastToSession(sessionMsg)

		case userMsg := <-h.UserBroadcast:
			h.broadcastToUser(userMsg)
		}
	}
}

// registerClient registers a new client
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	// A reconnect replaces the previous socket for that user
	if old, ok := h.userClients[client.UserID]; ok && old != client {
		delete(h.clients, old)
		if old.SessionID != "" {
			h.removeClientFromSession(old)
		}
		close(old.Send)
	}
	h.userClients[client.UserID] = client

	h.updateStats()

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": len(h.clients),
	}).Info("Client registered")

	welcomeMsg := NewWSMessage(MessageTypeConnected, "Connected successfully", map[string]interface{}{
		"user_id":     client.UserID,
		"server_time": time.Now(),
	})
	client.SendMessage(welcomeMsg)
}

// unregisterClient unregisters a client
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)

		if h.userClients[client.UserID] == client {
			delete(h.userClients, client.UserID)
		}

		sessionID := client.SessionID
		if sessionID != "" {
			h.removeClientFromSession(client)
		}

		close(client.Send)

		h.updateStats()

		logger.WithFields(map[string]interface{}{
			"user_id":       client.UserID,
			"total_clients": len(h.clients),
			"session_id":    sessionID,
		}).Info("Client unregistered")

		// Runs outside the lock: the hook may call back into the hub
		if h.OnDisconnect != nil && sessionID != "" {
			go h.OnDisconnect(client.UserID, sessionID)
		}
	}
}

// AddClientToSession joins a client to a session room
func (h *Hub) AddClientToSession(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.SessionID != "" {
		h.removeClientFromSession(client)
	}

	if h.sessionClients[sessionID] == nil {
		h.sessionClients[sessionID] = make(map[*Client]bool)
	}
	h.sessionClients[sessionID][client] = true
	client.SetSessionID(sessionID)

	h.updateStats()

	logger.LogSessionEvent("user_joined_session", sessionID, client.UserID, map[string]interface{}{
		"session_size": len(h.sessionClients[sessionID]),
	})
}

// removeClientFromSession removes a client from their current session room
func (h *Hub) removeClientFromSession(client *Client) {
	if client.SessionID == "" {
		return
	}

	sessionID := client.SessionID

	if sessionClients, exists := h.sessionClients[sessionID]; exists {
		delete(sessionClients, client)

		if len(sessionClients) == 0 {
			delete(h.sessionClients, sessionID)
		}
	}

	client.SetSessionID("")

	logger.LogSessionEvent("user_left_session", sessionID, client.UserID, nil)
}

// broadcastToSession broadcasts a message to all clients in a session room
func (h *Hub) broadcastToSession(sessionMsg *SessionMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessionClients, exists := h.sessionClients[sessionMsg.SessionID]
	if !exists {
		return
	}

	data, err := sessionMsg.Message.ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal session message")
		return
	}

	for client := range sessionClients {
		if sessionMsg.Exclude != "" && client.UserID == sessionMsg.Exclude {
			continue
		}

		select {
		case client.Send <- data:
		default:
			// Client send buffer is full, remove client
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}
}

// broadcastToUser broadcasts a message to a specific user
func (h *Hub) broadcastToUser(userMsg *UserMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.userClients[userMsg.UserID]
	if !exists {
		return
	}

	client.SendMessage(userMsg.Message)
}

// Public methods for broadcasting

// BroadcastToSession broadcasts a message to a session room
func (h *Hub) BroadcastToSession(sessionID string, message *WSMessage) {
	h.SessionBroadcast <- &SessionMessage{
		SessionID: sessionID,
		Message:   message,
	}
}

// BroadcastToSessionExcept broadcasts to a session room except one user
func (h *Hub) BroadcastToSessionExcept(sessionID, excludeUserID string, message *WSMessage) {
	h.SessionBroadcast <- &SessionMessage{
		SessionID: sessionID,
		Message:   message,
		Exclude:   excludeUserID,
	}
}

// BroadcastToUser broadcasts a message to a specific user
func (h *Hub) BroadcastToUser(userID string, message *WSMessage) {
	h.UserBroadcast <- &UserMessage{
		UserID:  userID,
		Message: message,
	}
}

// BroadcastTyping broadcasts a typing indicator to the other party
func (h *Hub) BroadcastTyping(sessionID, userID string, isTyping bool) {
	msgType := MessageTypeStopTyping
	if isTyping {
		msgType = MessageTypeTyping
	}

	message := NewWSMessage(msgType, "", map[string]interface{}{
		"user_id": userID,
	})
	message.SetSessionID(sessionID)

	h.BroadcastToSessionExcept(sessionID, userID, message)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() *HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	statsCopy := &HubStats{
		TotalClients:   h.stats.TotalClients,
		OnlineUsers:    h.stats.OnlineUsers,
		ActiveSessions: h.stats.ActiveSessions,
		LastUpdated:    h.stats.LastUpdated,
		SessionStats:   make(map[string]int),
	}

	for k, v := range h.stats.SessionStats {
		statsCopy.SessionStats[k] = v
	}

	return statsCopy
}

// IsUserOnline checks if a user has a live socket
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.userClients[userID]
	return exists
}

func (h *Hub) updateStats() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()

	h.stats.TotalClients = len(h.clients)
	h.stats.OnlineUsers = len(h.userClients)
	h.stats.ActiveSessions = len(h.sessionClients)
	h.stats.LastUpdated = time.Now()

	h.stats.SessionStats = make(map[string]int)
	for sessionID, clients := range h.sessionClients {
		h.stats.SessionStats[sessionID] = len(clients)
	}
}

// Periodic tasks

func (h *Hub) startPeriodicTasks() {
	cleanupTimer := time.NewTicker(5 * time.Minute)
	storeStatsTimer := time.NewTicker(1 * time.Minute)

	for {
		select {
		case <-cleanupTimer.C:
			h.cleanupInactiveConnections()

		case <-storeStatsTimer.C:
			h.storeStatistics()
		}
	}
}

// cleanupInactiveConnections removes connections that stopped ponging
func (h *Hub) cleanupInactiveConnections() {
	h.mu.RLock()
	inactiveClients := make([]*Client, 0)

	for client := range h.clients {
		if time.Since(client.LastPong) > pongWait {
			inactiveClients = append(inactiveClients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range inactiveClients {
		logger.WithFields(map[string]interface{}{
			"user_id":   client.UserID,
			"last_pong": client.LastPong,
		}).Info("Removing inactive client")

		h.Unregister <- client
	}
}

// storeStatistics keeps the latest hub snapshot in Redis for dashboards
func (h *Hub) storeStatistics() {
	stats := h.GetStats()

	data, err := json.Marshal(stats)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal hub statistics")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := database.GetClient().Set(ctx, "gateway:hub:stats", data, time.Hour).Err(); err != nil {
		logger.WithError(err).Error("Failed to store hub statistics")
	}
}
