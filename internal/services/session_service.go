package services

import (
	"context"
	"errors"

	"astroconnect/internal/models"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/logger"
)

var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// SessionService fronts the session endpoints for the chat view: fetch,
// end, rate, history. Call sessions end through the call service so their
// media teardown runs; everything here is media-free.
type SessionService struct {
	api  upstream.SessionAPI
	chat *ChatService
	hub  *websocket.Hub
}

func NewSessionService(api upstream.SessionAPI, chat *ChatService, hub *websocket.Hub) *SessionService {
	return &SessionService{api: api, chat: chat, hub: hub}
}

// Get returns the session as the backend sees it.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.api.GetSession(ctx, sessionID)
}

// End closes a chat session: the backend settles the bill and the local
// message cache is dropped.
func (s *SessionService) End(ctx context.Context, sessionID, userID string) (*models.SessionSummary, error) {
	summary, err := s.api.EndSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.chat.Close(sessionID)

	logger.LogSessionEvent("session_ended", sessionID, userID, map[string]interface{}{
		"duration":   summary.Duration,
		"total_cost": summary.TotalCost.String(),
	})

	msg := websocket.NewWSMessage(websocket.MessageTypeSessionEnded, "", map[string]interface{}{
		"session_id": sessionID,
		"duration":   summary.Duration,
		"total_cost": summary.TotalCost,
	})
	s.hub.BroadcastToUser(userID, msg)

	return summary, nil
}

// Rate records the user's 1-5 rating for a finished session.
func (s *SessionService) Rate(ctx context.Context, sessionID string, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return s.api.RateSession(ctx, sessionID, rating)
}

// History lists the user's past sessions, newest first.
func (s *SessionService) History(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.api.GetSessionHistory(ctx, userID, limit)
}
