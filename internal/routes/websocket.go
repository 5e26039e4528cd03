package routes

import (
	"astroconnect/internal/handlers"
	"astroconnect/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupWebSocketRoutes(router *gin.Engine, deps Deps) {
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Chat)

	auth := middleware.JWTAuth(deps.Config.Security, deps.Config.App.LoginURL)

	ws := router.Group("/ws")
	{
		// Push channel for request status, chat delivery, and cost ticks.
		// The token rides the query string because browsers cannot set
		// headers on WebSocket upgrades.
		ws.GET("/connect", middleware.WebSocketRateLimit(), auth, wsHandler.HandleConnection)
	}
}
