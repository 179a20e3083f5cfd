package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/auth"
	"github.com/vovakirdan/directchat/internal/config"
	"github.com/vovakirdan/directchat/internal/directchat"
	"github.com/vovakirdan/directchat/internal/handle"
)

// NewServer builds the HTTP server. authService is nil when accounts are
// managed elsewhere (matrix backend); register and login are then not served.
func NewServer(authenticator Authenticator, authService *auth.Service, handles handle.Mapper, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(authenticator, authService, handles, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers all routes on a gin engine.
func NewRouter(authenticator Authenticator, authService *auth.Service, handles handle.Mapper, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler)

	api := r.Group("/api")
	if authService != nil {
		apiHandlers := NewAPIHandlers(authService, logger)
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)
	}

	// one locker for all requests so Create is serialized per account
	locker := directchat.NewKeyedMutex()
	authed := api.Group("", AuthMiddleware(authenticator, handles, locker, logger))
	mutating := authed.Group("", RateLimitMiddleware(cfg.RateLimitPerMinute, logger), SettleDelayMiddleware(cfg.SettleDelay))

	dc := NewDirectChatHandlers(handles, logger)
	authed.GET("/direct-chats", dc.ListJoined)
	mutating.POST("/direct-chats", dc.Create)
	authed.GET("/direct-chats/invitations", dc.ListInvitations)
	mutating.POST("/direct-chats/invitations/:room_id/accept", dc.AcceptInvitation)
	mutating.POST("/direct-chats/invitations/:room_id/decline", dc.DeclineInvitation)

	authed.GET("/blocked", dc.ListBlocked)
	mutating.PUT("/blocked/:handle", dc.Block)
	mutating.DELETE("/blocked/:handle", dc.Unblock)

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
