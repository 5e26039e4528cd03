package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"astroconnect/internal/services"
	"astroconnect/internal/utils"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/logger"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
)

// WebSocketHandler upgrades authenticated clients onto the push channel
// that carries request status, queue updates, chat delivery, typing, and
// cost ticks.
type WebSocketHandler struct {
	hub      *websocket.Hub
	chat     *services.ChatService
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, chat *services.ChatService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		chat: chat,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
					return true
				}
				return isOriginAllowedForWS(origin)
			},
		},
	}
}

// HandleConnection upgrades the request and starts the client pumps.
// Authentication already happened in middleware; the user ID is on the
// gin context.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	sessionID := c.Query("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(conn, h.hub, userID)
	client.IP = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")
	client.OnTyping = func(sessionID, userID string, typing bool) {
		if !typing {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.chat.Typing(ctx, sessionID, userID)
	}

	h.hub.Register <- client

	if sessionID != "" {
		h.hub.AddClientToSession(client, sessionID)
	}

	logger.LogUserAction(userID, "websocket_connected", map[string]interface{}{
		"ip":         client.IP,
		"user_agent": client.UserAgent,
		"session_id": sessionID,
	})

	go client.WritePump()
	go client.ReadPump()
}

func isOriginAllowedForWS(origin string) bool {
	allowed := []string{
		"https://app.astroconnect.example.com",
	}
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}
	return false
}
