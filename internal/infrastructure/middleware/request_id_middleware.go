package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"aimon/pkg/logger"
	"aimon/pkg/utils"
)

// RequestIDMiddleware tags every request with an ID, reusing the client's
// X-Request-ID when present so IDs stay stable across proxies.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = utils.GenerateRequestID()
		}

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-ID", id)

		c.Next()
	}
}
