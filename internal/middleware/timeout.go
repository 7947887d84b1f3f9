package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
)

// TimeoutDetail body text of a 504
const TimeoutDetail = "Request processing time exceeded limit"

// Timeout answers 504 once d has passed. Work already started by the
// handler keeps running; its response is discarded.
func Timeout(d time.Duration) gin.HandlerFunc {
	return timeout.New(
		timeout.WithTimeout(d),
		// after a 504 the abandoned chain still holds a context gin may reuse
		timeout.WithHandler(func(c *gin.Context) { c.Next() }),
		timeout.WithResponse(func(c *gin.Context) {
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"detail":          TimeoutDetail,
				"processing_time": time.Since(startedAt(c)).Seconds(),
			})
		}),
	)
}
