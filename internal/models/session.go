package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus represents the lifecycle state of a consultation session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the billable consultation record, created upstream once a
// request is accepted. Duration and total cost are authoritative only
// after the session leaves the active state.
type Session struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ProviderID     string          `json:"provider_id"`
	ProviderName   string          `json:"provider_name,omitempty"`
	ProviderImage  string          `json:"provider_image,omitempty"`
	Type           SessionType     `json:"type"`
	Status         SessionStatus   `json:"status"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	Duration       int64           `json:"duration"` // seconds, final once ended
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Rating         int             `json:"rating,omitempty"` // 1-5, optional
}

// EstimateCost returns the display-only running cost for a session that has
// been active for elapsed seconds: ceil(elapsed/60) * pricePerMinute. The
// authoritative cost is always the one returned by the end-session call.
func EstimateCost(elapsedSeconds int64, pricePerMinute decimal.Decimal) decimal.Decimal {
	if elapsedSeconds <= 0 {
		return decimal.Zero
	}
	minutes := (elapsedSeconds + 59) / 60
	return pricePerMinute.Mul(decimal.NewFromInt(minutes))
}

// SessionSummary is the authoritative result of ending a session.
type SessionSummary struct {
	SessionID string          `json:"session_id"`
	Duration  int64           `json:"duration"` // seconds
	TotalCost decimal.Decimal `json:"total_cost"`
}

// MediaToken carries the opaque room/token pair issued for a call session.
// The gateway passes it through without interpreting it.
type MediaToken struct {
	Room      string      `json:"room"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	ICE       []ICEServer `json:"ice_servers,omitempty"`
}

// ICEServer is a single STUN/TURN entry handed to the call view.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}
