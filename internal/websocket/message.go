package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType represents different types of WebSocket messages
type MessageType string

const (
	// Request lifecycle types pushed to the requesting user
	MessageTypeRequestStatus  MessageType = "request_status"
	MessageTypeQueueUpdate    MessageType = "queue_update"
	MessageTypeSessionStarted MessageType = "session_started"
	MessageTypeSessionEnded   MessageType = "session_ended"

	// Chat types shared inside a session room
	MessageTypeNewMessage    MessageType = "message_new"
	MessageTypeMessageUpdate MessageType = "message_update"
	MessageTypeTyping        MessageType = "typing"
	MessageTypeStopTyping    MessageType = "stop_typing"

	// Call types
	MessageTypeCostTick MessageType = "cost_tick"

	// System types
	MessageTypeConnected MessageType = "connected"
	MessageTypeError     MessageType = "error"
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	ID        string                 `json:"id"`
	Type      MessageType            `json:"type"`
	Content   string                 `json:"content,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	From      string                 `json:"from,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewWSMessage creates a new WebSocket message
func NewWSMessage(msgType MessageType, content string, data map[string]interface{}) *WSMessage {
	return &WSMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Content:   content,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ToJSON converts message to JSON bytes
func (msg *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(msg)
}

// FromJSON creates message from JSON bytes
func FromJSON(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// SetFrom sets the sender of the message
func (msg *WSMessage) SetFrom(userID string) {
	msg.From = userID
}

// SetSessionID sets the session ID for the message
func (msg *WSMessage) SetSessionID(sessionID string) {
	msg.SessionID = sessionID
}

// AddData adds data to the message
func (msg *WSMessage) AddData(key string, value interface{}) {
	if msg.Data == nil {
		msg.Data = make(map[string]interface{})
	}
	msg.Data[key] = value
}

// IsSessionMessage checks if the message must carry a session ID
func (msg *WSMessage) IsSessionMessage() bool {
	sessionTypes := []MessageType{
		MessageTypeNewMessage, MessageTypeMessageUpdate,
		MessageTypeTyping, MessageTypeStopTyping, MessageTypeCostTick,
	}

	for _, sessionType := range sessionTypes {
		if msg.Type == sessionType {
			return true
		}
	}
	return false
}

// Validate validates the message structure
func (msg *WSMessage) Validate() error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	if msg.IsSessionMessage() && msg.SessionID == "" {
		return fmt.Errorf("session_id is required for session messages")
	}

	return nil
}
