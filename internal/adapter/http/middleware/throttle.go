package middleware

import (
	"strconv"
	"time"

	"kiosk-ledger/internal/core/ports"
	"kiosk-ledger/pkg/apperror"
	"kiosk-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ThrottleRule defines how many requests one terminal may send per window.
type ThrottleRule struct {
	Limit  int64
	Window time.Duration
}

// Throttle limits requests per terminal for one route group.
// A throttle backend failure lets the request through.
func Throttle(th ports.Throttle, group string, rule ThrottleRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := terminalKey(c) + ":" + group

		allowed, err := th.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("throttle check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(rule.Window/time.Second), 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// terminalKey prefers the terminal header and falls back to the client address.
func terminalKey(c *gin.Context) string {
	if id := c.GetHeader(HeaderTerminalID); id != "" {
		return id
	}
	return c.ClientIP()
}
