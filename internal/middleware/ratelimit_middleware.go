package middleware

import (
	"context"
	"net/http"
	"strconv"

	"vox-chat/internal/redis"
	"vox-chat/internal/transport/httpdto"
	"vox-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UploadLimiter is satisfied by *redis.RateLimiter.
type UploadLimiter interface {
	AllowUpload(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// UploadRateLimitMiddleware limits uploads per client IP. When the limiter
// itself fails the request is let through.
func UploadRateLimitMiddleware(limiter UploadLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowUpload(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.Ctx(c.Request.Context()).Warn("upload rate limit unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("upload rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
