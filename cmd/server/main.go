package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"astroconnect/internal/config"
	"astroconnect/internal/monitoring"
	"astroconnect/internal/routes"
	"astroconnect/internal/services"
	"astroconnect/internal/store"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
	"astroconnect/pkg/database"
	"astroconnect/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Initialize redis
	if err := database.InitRedis(cfg.Redis); err != nil {
		logger.Fatal("Failed to connect to redis: " + err.Error())
	}
	defer database.Close()

	// Upstream platform client
	api := upstream.NewClient(cfg.Upstream)

	startupCtx, cancelStartup := context.WithCancel(context.Background())
	defer cancelStartup()
	if err := api.WaitHealthy(startupCtx, 30*time.Second); err != nil {
		logger.WithError(err).Warn("upstream not healthy yet, continuing startup")
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Persisted request state
	requestStore := store.NewRequestStore(database.GetClient(), cfg.Lifecycle.RequestTTL)

	// Status source: push channel when configured, polling otherwise
	polling := services.NewPollingSource(api, cfg.Lifecycle.PollInterval)
	var source services.StatusSource = polling
	if cfg.Upstream.WebSocketURL != "" {
		source = services.NewPushSource(cfg.Upstream.WebSocketURL, cfg.Upstream.APIKey, polling)
	}

	// Services
	walletService := services.NewWalletService(api, cfg.Billing.MinimumMinutes)
	requestService := services.NewRequestService(api, walletService, requestStore, hub, source, cfg.Lifecycle.CountdownSeconds)
	chatService := services.NewChatService(api, hub, cfg.Lifecycle.TypingQuiet)
	sessionService := services.NewSessionService(api, chatService, hub)
	mediaService := services.NewMediaService(api, cfg.Media)
	callService := services.NewCallService(api, hub, services.NewTrackManager(), cfg.Lifecycle.CostTick)

	// A socket that goes away mid-call releases its media tracks
	hub.OnDisconnect = func(userID, sessionID string) {
		callService.HandleDisconnect(sessionID, userID)
	}

	// Resume requests that survived a restart
	if err := requestService.RestoreActive(context.Background()); err != nil {
		logger.WithError(err).Warn("could not restore active requests")
	}

	// Prometheus collectors
	monitoring.NewMonitor(database.GetClient())

	// Initialize Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	deps := routes.Deps{
		Config:   cfg,
		Hub:      hub,
		Upstream: api,
		Requests: requestService,
		Sessions: sessionService,
		Chat:     chatService,
		Calls:    callService,
		Wallet:   walletService,
		Media:    mediaService,
	}
	routes.SetupRoutes(router, deps)
	routes.SetupWebSocketRoutes(router, deps)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("Server starting on port: " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: " + err.Error())
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown: " + err.Error())
	}
}
