package handlers

import (
	"errors"
	"net/http"

	"astroconnect/internal/models"
	"astroconnect/internal/services"
	"astroconnect/internal/utils"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the in-session message surface. Sends go over HTTP
// so the optimistic cache can reconcile them; delivery of remote
// messages rides the WebSocket.
type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Open loads the latest page for a session and returns it.
func (h *ChatHandler) Open(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.chat.Open(c.Request.Context(), sessionID)
	if err != nil {
		writeUpstreamError(c, err, "Failed to open chat")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"messages": messages,
		"has_more": h.chat.HasMore(sessionID),
	})
}

// Messages returns the cached message list for an open session.
func (h *ChatHandler) Messages(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.chat.Messages(sessionID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotOpen) {
			utils.NotFoundResponse(c, "Chat session not open")
			return
		}
		utils.InternalErrorResponse(c, "Failed to load messages")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"messages": messages,
		"has_more": h.chat.HasMore(sessionID),
	})
}

// LoadOlder fetches the next older page into the cache.
func (h *ChatHandler) LoadOlder(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.chat.LoadOlder(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotOpen):
			utils.NotFoundResponse(c, "Chat session not open")
		case errors.Is(err, services.ErrNoOlderPages):
			utils.ErrorResponseWithCode(c, http.StatusConflict, "NO_OLDER_PAGES",
				"All older messages are already loaded", nil)
		case errors.Is(err, services.ErrAlreadyLoading):
			utils.ErrorResponseWithCode(c, http.StatusConflict, "PAGE_LOAD_IN_FLIGHT",
				"An older page is already loading", nil)
		default:
			writeUpstreamError(c, err, "Failed to load older messages")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{
		"messages": messages,
		"has_more": h.chat.HasMore(sessionID),
	})
}

type sendMessagePayload struct {
	Content string `json:"content" validate:"required"`
	Type    string `json:"type"`
}

// Send posts a message into the session. The response carries the
// reconciled message with its server-assigned ID.
func (h *ChatHandler) Send(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	var payload sendMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	kind := models.MessageType(payload.Type)
	if kind == "" {
		kind = models.MessageText
	}

	message, err := h.chat.Send(c.Request.Context(), sessionID, userID, payload.Content, kind)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotOpen):
			utils.NotFoundResponse(c, "Chat session not open")
		case errors.Is(err, services.ErrEmptyMessage):
			utils.ErrorResponse(c, http.StatusBadRequest, "Message content is empty")
		default:
			writeUpstreamError(c, err, "Failed to send message")
		}
		return
	}

	utils.SuccessResponse(c, message)
}

// Typing reports keystroke activity. The quiet-period debounce lives in
// the service; calling this repeatedly is expected.
func (h *ChatHandler) Typing(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString("user_id")

	h.chat.Typing(c.Request.Context(), sessionID, userID)

	utils.SuccessResponse(c, gin.H{"typing": true})
}
