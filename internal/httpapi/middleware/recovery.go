package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/common"
)

// Recovery converts a handler panic into a typed 500 envelope instead of a
// dropped connection, logging the stack with the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(c)
				common.RequestLogger(requestID).Error("panic recovered",
					"panic", rec,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				e := apierr.Internal(apierr.CodeStreamError, "An internal error occurred while processing the request")
				c.AbortWithStatusJSON(http.StatusInternalServerError, e.Envelope(requestID))
			}
		}()
		c.Next()
	}
}
