package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// rateLimiter holds one token bucket per account.
type rateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	accounts map[string]*rate.Limiter
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		accounts: make(map[string]*rate.Limiter),
	}
}

func (r *rateLimiter) allow(account string) bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	limiter, ok := r.accounts[account]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.accounts[account] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}

// RateLimitMiddleware limits requests per authenticated account.
// perMinute <= 0 disables limiting.
func RateLimitMiddleware(perMinute int, logger *zerolog.Logger) gin.HandlerFunc {
	limiter := newRateLimiter(perMinute)
	return func(c *gin.Context) {
		userID := c.GetString(ContextKeyUserID)
		if !limiter.allow(userID) {
			logger.Debug().Str("user_id", userID).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
