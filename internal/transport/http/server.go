package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/config"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/service/messages"
)

// NewServer builds the HTTP server. REST and ops routes go through gin; /ws is
// served by the mux directly.
func NewServer(registry *core.Registry, authService *auth.Service, msgService *messages.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiHandlers := NewAPIHandlers(authService, logger)
	msgHandlers := NewMessageHandlers(msgService, cfg.MaxMessageBytes, logger)
	requireAuth := AuthMiddleware(authService, logger)

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/signup", apiHandlers.Signup)
		authGroup.POST("/login", apiHandlers.Login)
		authGroup.GET("/check", requireAuth, apiHandlers.Check)
		authGroup.PUT("/update-profile", requireAuth, apiHandlers.UpdateProfile)

		msgGroup := api.Group("/messages", requireAuth)
		msgGroup.GET("/users", msgHandlers.Sidebar)
		msgGroup.GET("/:id", msgHandlers.Conversation)
		msgGroup.PUT("/mark/:id", msgHandlers.MarkSeen)
		msgGroup.POST("/send/:id", msgHandlers.Send)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(registry, authService, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
