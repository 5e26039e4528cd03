package handlers

import (
	"errors"
	"net/http"

	"astroconnect/internal/services"
	"astroconnect/internal/utils"

	"github.com/gin-gonic/gin"
)

// CallHandler drives voice and video sessions: joining, in-call toggles,
// media credential refresh, and teardown.
type CallHandler struct {
	calls *services.CallService
	media *services.MediaService
}

func NewCallHandler(calls *services.CallService, media *services.MediaService) *CallHandler {
	return &CallHandler{calls: calls, media: media}
}

// Join attaches the caller to an active call or video session, acquiring
// local media tracks and starting the cost ticker.
func (h *CallHandler) Join(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	state, err := h.calls.Join(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}

	utils.SuccessResponse(c, state)
}

// State returns the live call state including the running cost estimate.
func (h *CallHandler) State(c *gin.Context) {
	sessionID := c.Param("session_id")

	state, err := h.calls.State(sessionID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}

	utils.SuccessResponse(c, state)
}

// RetryMedia re-requests the media token for a call that joined degraded.
func (h *CallHandler) RetryMedia(c *gin.Context) {
	sessionID := c.Param("session_id")

	state, err := h.calls.RetryMedia(c.Request.Context(), sessionID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}

	utils.SuccessResponse(c, state)
}

// Credentials returns ICE servers and a room token for the session.
func (h *CallHandler) Credentials(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	token, err := h.media.Credentials(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeUpstreamError(c, err, "Failed to issue media credentials")
		return
	}

	utils.SuccessResponse(c, token)
}

func (h *CallHandler) ToggleMute(c *gin.Context) {
	muted, err := h.calls.ToggleMute(c.Param("session_id"))
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"muted": muted})
}

func (h *CallHandler) ToggleVideo(c *gin.Context) {
	enabled, err := h.calls.ToggleVideo(c.Param("session_id"))
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"video_enabled": enabled})
}

func (h *CallHandler) ToggleSpeaker(c *gin.Context) {
	on, err := h.calls.ToggleSpeaker(c.Param("session_id"))
	if err != nil {
		h.writeCallError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"speaker_on": on})
}

// End hangs up, releases local media tracks, and returns the billing
// summary.
func (h *CallHandler) End(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	summary, err := h.calls.End(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeCallError(c, err)
		return
	}

	utils.SuccessResponseWithMessage(c, "Call ended", summary)
}

func (h *CallHandler) writeCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCallNotActive):
		utils.NotFoundResponse(c, "No active call for this session")
	case errors.Is(err, services.ErrCallAlreadyJoined):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "ALREADY_JOINED",
			"Call already joined", nil)
	case errors.Is(err, services.ErrSessionNotActive):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "SESSION_NOT_ACTIVE",
			"Session is not active", nil)
	case errors.Is(err, services.ErrWrongSessionType):
		utils.ErrorResponse(c, http.StatusBadRequest, "Session is not a call")
	default:
		writeUpstreamError(c, err, "Call operation failed")
	}
}
