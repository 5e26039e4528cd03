package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"astroconnect/internal/utils"

	"github.com/gin-gonic/gin"
)

// RateLimiter stores rate limiting information per client
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	burst    int
	cleanup  time.Duration
}

type visitor struct {
	limiter  *tokenBucket
	lastSeen time.Time
}

type tokenBucket struct {
	tokens   int
	capacity int
	rate     int
	lastTime time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a limiter refilling rate tokens per second with
// the given burst capacity.
func NewRateLimiter(rate, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    burst,
		cleanup:  time.Minute * 3,
	}

	go rl.cleanupVisitors()

	return rl
}

// Allow checks if a request from the given client key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{
			limiter: &tokenBucket{
				tokens:   rl.burst,
				capacity: rl.burst,
				rate:     rl.rate,
				lastTime: time.Now(),
			},
		}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.allow()
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastTime)
	tb.lastTime = now

	tokensToAdd := int(elapsed.Seconds()) * tb.rate
	if tb.tokens+tokensToAdd < tb.capacity {
		tb.tokens += tokensToAdd
	} else {
		tb.tokens = tb.capacity
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(rl.cleanup)

		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.cleanup {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

var (
	// General API rate limiter
	apiLimiter = NewRateLimiter(100, 20)

	// WebSocket connection rate limiter
	wsLimiter = NewRateLimiter(10, 5)

	// Chat message rate limiter
	chatLimiter = NewRateLimiter(30, 10)
)

// RateLimit middleware for general API endpoints
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getClientKey(c)

		if !apiLimiter.Allow(key) {
			c.Header("X-RateLimit-Limit", "100")
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "60")

			utils.ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", "100")
		c.Next()
	}
}

// WebSocketRateLimit middleware for WebSocket connections
func WebSocketRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getClientKey(c)

		if !wsLimiter.Allow(key) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "WebSocket connection limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// ChatRateLimit middleware for chat messages
func ChatRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use user ID if authenticated, otherwise IP
		key := c.GetString("user_id")
		if key == "" {
			key = getClientKey(c)
		}

		if !chatLimiter.Allow(key) {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "Chat rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CustomRateLimit creates a rate limiter middleware with its own budget.
func CustomRateLimit(rate, burst int, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, burst)

	return func(c *gin.Context) {
		var key string
		if keyFunc != nil {
			key = keyFunc(c)
		} else {
			key = getClientKey(c)
		}

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rate))
			c.Header("X-RateLimit-Remaining", "0")

			utils.ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rate))
		c.Next()
	}
}

func getClientKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}

	ip := c.ClientIP()

	if forwardedFor := c.GetHeader("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		if len(ips) > 0 {
			ip = strings.TrimSpace(ips[0])
		}
	} else if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		ip = realIP
	}

	return "ip:" + ip
}

// Logger middleware with a compact access log line
func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
