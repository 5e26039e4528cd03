package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus represents the lifecycle state of a connection request.
type RequestStatus string

const (
	// Non-terminal states
	StatusConnecting RequestStatus = "connecting" // created, first status not yet seen
	StatusWaiting    RequestStatus = "waiting"    // queued on the provider's waitlist

	// Terminal states
	StatusConnected RequestStatus = "connected" // provider accepted, session available
	StatusRejected  RequestStatus = "rejected"  // provider declined
	StatusTimeout   RequestStatus = "timeout"   // provider did not answer in time
	StatusCancelled RequestStatus = "cancelled" // user withdrew the request
)

// Terminal reports whether the status ends the request lifecycle.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusConnected, StatusRejected, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// SessionType is the kind of consultation being requested.
type SessionType string

const (
	SessionTypeChat  SessionType = "chat"
	SessionTypeCall  SessionType = "call"
	SessionTypeVideo SessionType = "video"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeChat, SessionTypeCall, SessionTypeVideo:
		return true
	}
	return false
}

// ConnectionRequest is a user's outstanding ask to connect with a provider.
// At most one non-terminal request may exist per user at a time.
type ConnectionRequest struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ProviderID     string          `json:"provider_id"`
	ProviderName   string          `json:"provider_name,omitempty"`
	ProviderImage  string          `json:"provider_image,omitempty"`
	Type           SessionType     `json:"type"`
	Status         RequestStatus   `json:"status"`
	SessionID      string          `json:"session_id,omitempty"` // set once connected
	RejectReason   string          `json:"reject_reason,omitempty"`
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// QueueEntry is a ranked slot on a provider's waitlist. Position and wait
// estimates are backend-authoritative; the client never reorders them.
type QueueEntry struct {
	QueueID       string      `json:"queue_id"`
	ProviderID    string      `json:"provider_id"`
	Type          SessionType `json:"type"`
	Position      int         `json:"position"` // 1-based rank
	EstimatedWait int         `json:"estimated_wait_seconds"`
	JoinedAt      time.Time   `json:"joined_at"`
}

// RequestView is the client-facing snapshot of a request, including the
// cosmetic countdown the UI animates while waiting.
type RequestView struct {
	Request          *ConnectionRequest `json:"request"`
	Queue            *QueueEntry        `json:"queue,omitempty"`
	RemainingSeconds int                `json:"remaining_seconds"`
}

// Provider is the astrologer being consulted, as seen by the gateway.
type Provider struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Image          string          `json:"image,omitempty"`
	Online         bool            `json:"online"`
	Busy           bool            `json:"busy"`
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
	Languages      []string        `json:"languages,omitempty"`
	Specialties    []string        `json:"specialties,omitempty"`
	Rating         float64         `json:"rating,omitempty"`
}
