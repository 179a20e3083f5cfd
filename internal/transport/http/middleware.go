package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/directchat"
	"github.com/vovakirdan/directchat/internal/handle"
)

const (
	// ContextKeyUserID is the context key for storing the caller's user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyService is the context key for the caller's *directchat.Service.
	ContextKeyService = "directchat_service"
	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID = "request_id"

	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"

	// HeaderSettleDelay tells clients how long to wait before re-reading
	// state after a mutating call.
	HeaderSettleDelay = "X-Settle-Delay-Ms"
)

// Authenticator resolves a bearer token into a provider acting as the
// token's account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (directchat.Provider, error)
}

// AuthMiddleware authenticates the bearer token and stores the caller's
// user ID and direct chat service in the context.
func AuthMiddleware(authenticator Authenticator, handles handle.Mapper, locker directchat.Locker, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		provider, err := authenticator.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		userID, err := provider.GetUserID(c.Request.Context())
		if err != nil || userID == "" {
			logger.Warn().Err(err).Msg("authenticated provider has no user id")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		userLog := logger.With().Str("user_id", userID).Logger()
		svc := directchat.NewService(provider, handles,
			directchat.WithLocker(locker),
			directchat.WithLogger(&userLog),
		)

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyService, svc)

		c.Next()
	}
}

// RequestIDMiddleware reuses the client's X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("user_id", c.GetString(ContextKeyUserID)).
			Str("request_id", c.GetString(ContextKeyRequestID)).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// SettleDelayMiddleware advertises the settling delay on mutating routes.
func SettleDelayMiddleware(delay time.Duration) gin.HandlerFunc {
	value := strconv.FormatInt(delay.Milliseconds(), 10)
	return func(c *gin.Context) {
		if delay > 0 {
			c.Header(HeaderSettleDelay, value)
		}
		c.Next()
	}
}
