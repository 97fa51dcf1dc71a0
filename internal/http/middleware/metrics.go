package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/readsession-backend/internal/observability"
)

// Metrics records request counts, latency and in-flight requests per route
// template. Unmatched paths are folded into one series.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(strings.ToUpper(c.Request.Method), route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
