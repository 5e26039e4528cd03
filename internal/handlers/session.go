package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
	"astroconnect/internal/utils"
	"astroconnect/pkg/logger"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GetSession returns the session detail.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeUpstreamError(c, err, "Failed to load session")
		return
	}

	utils.SuccessResponse(c, session)
}

// EndSession completes the session and returns the billing summary.
func (h *SessionHandler) EndSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	summary, err := h.sessions.End(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeUpstreamError(c, err, "Failed to end session")
		return
	}

	utils.SuccessResponseWithMessage(c, "Session ended", summary)
}

type ratingPayload struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// RateSession records a one-to-five star rating for a completed session.
func (h *SessionHandler) RateSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	var payload ratingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.sessions.Rate(c.Request.Context(), sessionID, payload.Rating); err != nil {
		if errors.Is(err, services.ErrInvalidRating) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Rating must be between 1 and 5")
			return
		}
		writeUpstreamError(c, err, "Failed to rate session")
		return
	}

	utils.SuccessResponseWithMessage(c, "Rating recorded", nil)
}

// History lists the caller's past sessions, newest first.
func (h *SessionHandler) History(c *gin.Context) {
	userID := c.GetString("user_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	sessions, err := h.sessions.History(c.Request.Context(), userID, limit)
	if err != nil {
		writeUpstreamError(c, err, "Failed to load session history")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// writeUpstreamError maps backend API errors through to the client.
// Backend outages become a retryable 502 so the UI shows its error screen
// instead of treating the failure as final.
func writeUpstreamError(c *gin.Context, err error, fallback string) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary() {
			utils.ErrorResponseWithCode(c, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
				"The service is temporarily unavailable, please retry", gin.H{"retryable": true})
			return
		}
		utils.ErrorResponse(c, apiErr.StatusCode, apiErr.Message)
		return
	}
	logger.WithError(err).Error(fallback)
	utils.InternalErrorResponse(c, fallback)
}
