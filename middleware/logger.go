package middleware

import (
	"time"

	"geoguess/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request at DEBUG, and at WARN for server errors.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			logger.Warn("%s %s -> %d (%s) %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.Errors.String())
			return
		}
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}
