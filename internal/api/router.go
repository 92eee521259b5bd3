package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converse-chat/converse/internal/config"
	"github.com/converse-chat/converse/internal/middleware"
)

// Handlers bundles everything the router mounts. Health is an optional
// readiness probe; when nil the health endpoint only reports liveness.
type Handlers struct {
	Auth   *AuthHandler
	Chat   *ChatHandler
	Thread *ThreadHandler
	Voice  *VoiceHandler
	Health func(ctx context.Context) error
}

// NewRouter wires all routes. Register, login, refresh, and the health check
// are public; every other /api route sits behind the session middleware.
func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS(cfg.ClientURL))

	// Synthesized voice replies are served as plain static files.
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		if h.Health != nil {
			if err := h.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/refresh", h.Auth.Refresh)
	api.POST("/auth/logout", h.Auth.Logout)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(cfg.AccessTokenSecret))

	authed.GET("/auth/me", h.Auth.Me)

	authed.POST("/chat", h.Chat.Send)
	authed.GET("/chat/stream", h.Chat.Stream)

	authed.GET("/history/:threadId", h.Thread.History)

	authed.GET("/thread", h.Thread.List)
	authed.POST("/thread", h.Thread.Create)
	authed.GET("/thread/:threadId", h.Thread.Get)
	authed.DELETE("/thread/clear", h.Thread.Clear)
	authed.DELETE("/thread/:threadId", h.Thread.Delete)

	authed.POST("/voice", h.Voice.Handle)

	return r
}
