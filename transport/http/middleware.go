package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
	"github.com/layer-3/fhevm/service"
)

const principalKey = "principal"

// AuthMiddleware creates middleware that validates bearer tokens issued for
// audience
func AuthMiddleware(tokenizer ports.Tokenizer, audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		principal, err := tokenizer.Verify(auth[7:], audience)
		if err != nil {
			if errors.Is(err, core.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireReady rejects requests while the session is not Ready
func RequireReady(client *service.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !client.IsInitialized() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(core.ErrNotInitialized))
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request once it has been served
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if v, ok := c.Get(principalKey); ok {
			fields = append(fields, zap.String("subject", v.(*core.Principal).Subject))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request served", fields...)
	}
}
