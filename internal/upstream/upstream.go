// Package upstream talks to the authoritative consultation backend. The
// gateway never owns billing, matchmaking, or media routing; every call in
// here is a boundary crossing and the backend's answer wins.
package upstream

import (
	"context"
	"fmt"
	"time"

	"astroconnect/internal/models"

	"github.com/shopspring/decimal"
)

// StatusResult is one answer from the request-status endpoint.
type StatusResult struct {
	Status       models.RequestStatus `json:"status"`
	SessionID    string               `json:"session_id,omitempty"`
	RejectReason string               `json:"reject_reason,omitempty"`
	Queue        *models.QueueEntry   `json:"queue,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at"`
}

// SessionAPI covers the request and session lifecycle endpoints.
type SessionAPI interface {
	CreateRequest(ctx context.Context, userID, providerID string, kind models.SessionType) (*models.ConnectionRequest, error)
	GetRequestStatus(ctx context.Context, requestID string) (*StatusResult, error)
	CancelRequest(ctx context.Context, requestID string) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error)
	RateSession(ctx context.Context, sessionID string, rating int) error
	GetSessionHistory(ctx context.Context, userID string, limit int) ([]models.Session, error)
}

// ChatAPI covers message exchange within a session.
type ChatAPI interface {
	SendMessage(ctx context.Context, sessionID, senderID, content string, kind models.MessageType) (*models.ChatMessage, error)
	GetMessages(ctx context.Context, sessionID, before string, limit int) (*models.MessagePage, error)
	SendTyping(ctx context.Context, sessionID, senderID string, typing bool) error
}

// WalletAPI exposes the read-only balance used by the gating check.
type WalletAPI interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// ProviderAPI exposes provider availability for the pre-flight gate.
type ProviderAPI interface {
	GetProvider(ctx context.Context, providerID string) (*models.Provider, error)
}

// MediaAPI issues the opaque room/token pair the call view consumes.
type MediaAPI interface {
	GetMediaToken(ctx context.Context, sessionID string) (*models.MediaToken, error)
}

// API is the full backend surface the gateway depends on.
type API interface {
	SessionAPI
	ChatAPI
	WalletAPI
	ProviderAPI
	MediaAPI
}

// APIError carries a backend-supplied error. User-facing surfaces prefer
// the backend message when present.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

// Temporary reports whether the error is worth retrying on the next poll
// tick rather than treating as a hard failure.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
