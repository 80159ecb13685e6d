package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request with latency and status.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// SecretRequired gates the machine-facing endpoints (terminal, DHCP) behind
// a shared secret. An empty configured secret disables the check.
func (s *Server) SecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APISecret == "" {
			c.Next()
			return
		}
		secret := strings.TrimSpace(c.Query("secret"))
		if secret == "" {
			secret = strings.TrimSpace(c.GetHeader("X-Api-Secret"))
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.APISecret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
