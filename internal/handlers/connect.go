package handlers

import (
	"errors"
	"net/http"

	"astroconnect/internal/models"
	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
	"astroconnect/internal/utils"
	"astroconnect/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConnectHandler exposes the request lifecycle: create a connection
// request toward a provider, observe the current one, and cancel it.
type ConnectHandler struct {
	requests *services.RequestService
}

func NewConnectHandler(requests *services.RequestService) *ConnectHandler {
	return &ConnectHandler{requests: requests}
}

type createRequestPayload struct {
	ProviderID  string `json:"provider_id" validate:"required,object_id"`
	SessionType string `json:"session_type" validate:"required,session_type"`
}

// CreateRequest starts a new connection request for the caller.
func (h *ConnectHandler) CreateRequest(c *gin.Context) {
	userID := c.GetString("user_id")

	var payload createRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if verrs := utils.ValidateStruct(payload); len(verrs) > 0 {
		fields := make(map[string]string, len(verrs))
		for _, v := range verrs {
			fields[v.Field] = v.Message
		}
		utils.ValidationErrorResponse(c, fields)
		return
	}

	view, err := h.requests.Create(c.Request.Context(), userID, payload.ProviderID, models.SessionType(payload.SessionType))
	if err != nil {
		h.writeCreateError(c, err)
		return
	}

	utils.SuccessResponseWithMessage(c, "Request created", view)
}

// Current returns the caller's active request with its queue position and
// the remaining countdown seconds, if any.
func (h *ConnectHandler) Current(c *gin.Context) {
	userID := c.GetString("user_id")

	view, err := h.requests.Current(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveRequest) {
			utils.NotFoundResponse(c, "No active request")
			return
		}
		utils.InternalErrorResponse(c, "Failed to load request")
		return
	}

	utils.SuccessResponse(c, view)
}

// Cancel withdraws the caller's active request. If the provider accepted
// while the cancel was in flight, the accepted state wins and is
// returned with a conflict status.
func (h *ConnectHandler) Cancel(c *gin.Context) {
	userID := c.GetString("user_id")

	view, err := h.requests.Cancel(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveRequest) {
			utils.NotFoundResponse(c, "No active request")
			return
		}
		logger.WithError(err).Error("cancel request failed")
		utils.InternalErrorResponse(c, "Failed to cancel request")
		return
	}

	if view.Request.Status == models.StatusConnected {
		utils.ErrorResponseWithCode(c, http.StatusConflict, "ALREADY_CONNECTED",
			"Provider accepted before the cancel completed", view)
		return
	}

	utils.SuccessResponse(c, view)
}

func (h *ConnectHandler) writeCreateError(c *gin.Context, err error) {
	var insufficient *services.InsufficientBalanceError
	var apiErr *upstream.APIError

	switch {
	case errors.Is(err, services.ErrInvalidSessionType):
		utils.ErrorResponse(c, http.StatusBadRequest, "Session type must be chat, call, or video")
	case errors.Is(err, services.ErrActiveRequest):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "ACTIVE_REQUEST",
			"An active request already exists", nil)
	case errors.Is(err, services.ErrProviderOffline):
		utils.ErrorResponseWithCode(c, http.StatusConflict, "PROVIDER_OFFLINE",
			"Provider is offline", nil)
	case errors.As(err, &insufficient):
		utils.ErrorResponseWithCode(c, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE",
			"Wallet balance is below the minimum for this provider", insufficient.Check)
	case errors.As(err, &apiErr):
		utils.ErrorResponse(c, apiErr.StatusCode, apiErr.Message)
	default:
		logger.WithError(err).Error("create request failed")
		utils.InternalErrorResponse(c, "Failed to create request")
	}
}
