package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crmbot/internal/metrics"
	logx "crmbot/pkg/logx"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), d)

		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("route", route),
			logx.Int("status", status),
			logx.Duration("dur", d),
			logx.String("request_id", c.GetString("request_id")),
		}
		switch {
		case status >= 500:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	}
}

// bearerAuth guards admin routes with "Authorization: Bearer <token>". The
// token is read per request so config reloads apply.
func bearerAuth(token func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := token()
		if want == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) != 1 {
			fail(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
