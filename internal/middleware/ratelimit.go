package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/pkg/metrics"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

// RateLimitOptions configures a fixed-window limiter.
type RateLimitOptions struct {
	Name   string
	Max    int64
	Window time.Duration
	// SkipAuthenticated exempts signed-in users.
	SkipAuthenticated bool
}

// RateLimit counts requests per client IP in fixed windows stored in Redis.
// Store errors fail open.
func RateLimit(store Store, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Max <= 0 {
		opts.Max = 50
	}
	if opts.Window <= 0 {
		opts.Window = time.Second
	}
	if opts.Name == "" {
		opts.Name = "global"
	}
	return func(c *gin.Context) {
		if store == nil || (opts.SkipAuthenticated && IsAuthenticated(c)) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		window := time.Now().UnixNano() / int64(opts.Window)
		key := fmt.Sprintf("inkwell:rate_limit:%s:%s:%d", opts.Name, ip, window)

		count, err := store.IncrWindow(c.Request.Context(), key, opts.Window+time.Second)
		if err != nil {
			c.Next()
			return
		}

		if count > opts.Max {
			metrics.RateLimited.WithLabelValues(opts.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(int(opts.Window.Seconds())+1))
			response.TooManyRequests(c)
			return
		}

		c.Next()
	}
}
