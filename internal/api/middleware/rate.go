package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig allows Max requests per client IP every Window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// DefaultRateLimitConfig returns 100 requests per 15 minutes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:    100,
		Window: 15 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit creates a per-IP token bucket middleware. A client may burst up
// to Max requests and then earns one request back every Window/Max.
// Rejected requests get 429 with the number of seconds until the next token.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	every := rate.Every(cfg.Window / time.Duration(cfg.Max))

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep = now()
	)

	return func(c *gin.Context) {
		t := now()
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(every, cfg.Max)}
			clients[ip] = cl
		}
		cl.lastSeen = t

		// a client idle for a full window has a full bucket again
		if t.Sub(lastSweep) > cfg.Window {
			for key, other := range clients {
				if t.Sub(other.lastSeen) > cfg.Window {
					delete(clients, key)
				}
			}
			lastSweep = t
		}
		reservation := cl.limiter.ReserveN(t, 1)
		mu.Unlock()

		if delay := reservation.DelayFrom(t); delay > 0 {
			reservation.CancelAt(t)
			retryAfter := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests",
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}
