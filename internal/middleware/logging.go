package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/cryptopulse/internal/logging"
)

// RequestLogger writes one structured line per request. Run it after RequestID.
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logging.LogAPIRequest(logger, c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds(), c.GetString("request_id"))
	}
}
