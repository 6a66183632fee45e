// Package requestid tags every request with a correlation id so gate-scan
// and approval traffic can be traced across the access log and audit trail.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header carries the correlation id. Inbound values are honored so ids
// assigned by an upstream proxy survive into the logs.
const Header = "X-Request-ID"

const contextKey = "request_id"

// Middleware ensures the request carries a correlation id, minting one when
// the caller did not supply it, and echoes it on the response.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)

		c.Next()
	}
}

// Value returns the correlation id for the current request, or "" when the
// middleware did not run.
func Value(c *gin.Context) string {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
