package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageStatus tracks a chat message through delivery.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending" // optimistic local entry
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// SenderType identifies which side of the consultation sent a message.
type SenderType string

const (
	SenderUser       SenderType = "user"
	SenderAstrologer SenderType = "astrologer"
)

// MessageType is the content kind of a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
)

// ChatMessage is one exchanged message within a session. Optimistic local
// entries carry a temp- prefixed id until the backend acknowledges them.
type ChatMessage struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	SenderID   string        `json:"sender_id"`
	SenderType SenderType    `json:"sender_type"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	Status     MessageStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

const tempIDPrefix = "temp-"

// NewTempID returns a client-generated id for an optimistic message entry.
func NewTempID(now time.Time) string {
	return fmt.Sprintf("%s%d", tempIDPrefix, now.UnixNano())
}

// IsTempID reports whether id belongs to an unacknowledged optimistic entry.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// MessagePage is one page of history, fetched newest-first by cursor.
type MessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
