package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// RateLimiter implements a simple token bucket per caller. Callers are the
// authenticated taker when claims are present, otherwise the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 120 requests per minute).
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

// Middleware returns a Gin middleware that rate-limits requests.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(callerKey(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// AllowTaker spends one token of a taker's bucket outside of HTTP, for
// saves arriving on a WebSocket stream. It shares the bucket of the
// taker's HTTP requests.
func (rl *RateLimiter) AllowTaker(takerID int) bool {
	return rl.allow(takerKey(takerID))
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
		rl.cleanupLocked(now)
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(v.lastSeen)
	if refill := int(elapsed/rl.interval) * rl.rate; refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// cleanupLocked forgets callers idle for three intervals. It runs when a new
// caller shows up, so the map stays bounded without a janitor goroutine.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}

func callerKey(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return takerKey(claims.UserID)
	}
	return "ip:" + c.ClientIP()
}

func takerKey(takerID int) string {
	return "taker:" + strconv.Itoa(takerID)
}
