package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	triggerRate  = 1.0
	triggerBurst = 10
)

var ErrRateLimited = errors.New("rate_limited")

// TriggerRateLimit throttles the permissionless batch triggers per caller,
// or per client IP when no caller is given. Without Redis it allows
// everything, and it fails open when Redis errors.
func (s *Server) TriggerRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}

		subject := callerFrom(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		result, err := s.limiter.Allow(c.Request.Context(), "recurra:trigger:"+subject, triggerRate, triggerBurst)
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func rateLimitedPayload() (int, errorPayload) {
	return http.StatusTooManyRequests, errorPayload{
		Type:    "rate_limited",
		Message: "too many requests",
	}
}
