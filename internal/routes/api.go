package routes

import (
	"net/http"

	"astroconnect/internal/config"
	"astroconnect/internal/handlers"
	"astroconnect/internal/middleware"
	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries the wired services into route registration.
type Deps struct {
	Config   *config.Config
	Hub      *websocket.Hub
	Upstream upstream.API
	Requests *services.RequestService
	Sessions *services.SessionService
	Chat     *services.ChatService
	Calls    *services.CallService
	Wallet   *services.WalletService
	Media    *services.MediaService
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	connectHandler := handlers.NewConnectHandler(deps.Requests)
	sessionHandler := handlers.NewSessionHandler(deps.Sessions)
	chatHandler := handlers.NewChatHandler(deps.Chat)
	callHandler := handlers.NewCallHandler(deps.Calls, deps.Media)
	walletHandler := handlers.NewWalletHandler(deps.Wallet, deps.Upstream)

	// Global middleware
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit())
	router.Use(middleware.Logger())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := database.HealthCheck(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": deps.Config.App.Version,
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuth(deps.Config.Security, deps.Config.App.LoginURL)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		// Connection request lifecycle
		requests := v1.Group("/requests")
		{
			requests.POST("", connectHandler.CreateRequest)
			requests.GET("/current", connectHandler.Current)
			requests.DELETE("/current", connectHandler.Cancel)
		}

		// Provider cards and the affordability gate
		v1.GET("/providers/:provider_id", walletHandler.GetProvider)
		v1.GET("/wallet/check", walletHandler.CheckBalance)

		// Sessions
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:session_id", sessionHandler.GetSession)
			sessions.POST("/:session_id/end", sessionHandler.EndSession)
			sessions.POST("/:session_id/rating", sessionHandler.RateSession)

			// In-session chat
			sessions.POST("/:session_id/chat/open", chatHandler.Open)
			sessions.GET("/:session_id/messages", chatHandler.Messages)
			sessions.POST("/:session_id/messages/older", chatHandler.LoadOlder)
			sessions.POST("/:session_id/messages", middleware.ChatRateLimit(), chatHandler.Send)
			sessions.POST("/:session_id/typing", chatHandler.Typing)

			// Calls
			sessions.POST("/:session_id/call/join", callHandler.Join)
			sessions.GET("/:session_id/call", callHandler.State)
			sessions.POST("/:session_id/call/retry-media", callHandler.RetryMedia)
			sessions.GET("/:session_id/call/credentials", callHandler.Credentials)
			sessions.POST("/:session_id/call/mute", callHandler.ToggleMute)
			sessions.POST("/:session_id/call/video", callHandler.ToggleVideo)
			sessions.POST("/:session_id/call/speaker", callHandler.ToggleSpeaker)
			sessions.POST("/:session_id/call/end", callHandler.End)
		}

		// Session history
		v1.GET("/history", sessionHandler.History)
	}
}
