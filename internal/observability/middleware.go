package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// connParam is the route parameter naming a link connection handle.
const connParam = "conn"

// RequestLogger logs one line per request. Requests against a link
// connection carry its handle and the action, and the level follows the link
// outcome: a busy engine is routine, a vanished connection is informational,
// and only gateway or link failures are errors.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := routePath(c)
		conn := c.Param(connParam)

		event := logger.WithLevel(requestLevel(status, conn != ""))
		event = event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if conn != "" {
			event = event.Str("conn", conn).Str("outcome", linkOutcome(status))
			if action := linkAction(path); action != "" {
				event = event.Str("action", action)
			}
		}
		if err := c.Errors.Last(); err != nil {
			event = event.AnErr("error", err.Err)
		}
		event.Msg("http_request")
	}
}

// RequestMetricsMiddleware records request counts and latency by route, and
// device-initiated link actions by outcome.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := routePath(c)
		status := c.Writer.Status()
		RecordHTTPRequest(node, c.Request.Method, path, status, time.Since(start))
		if c.Request.Method != http.MethodPost || c.Param(connParam) == "" {
			return
		}
		if action := linkAction(path); action != "" {
			RecordLinkAction(node, action, linkOutcome(status))
		}
	}
}

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func requestLevel(status int, onConn bool) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case onConn && status == http.StatusConflict:
		return zerolog.DebugLevel
	case onConn && status == http.StatusNotFound:
		return zerolog.InfoLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// linkAction is the route segment after /connections/:conn, if any.
func linkAction(path string) string {
	_, rest, ok := strings.Cut(path, ":"+connParam)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(rest, "/")
}

// linkOutcome names the link result behind a gateway status code.
func linkOutcome(status int) string {
	switch {
	case status == http.StatusAccepted || status == http.StatusOK:
		return "accepted"
	case status == http.StatusConflict:
		return "busy"
	case status == http.StatusNotFound:
		return "unknown_connection"
	case status == http.StatusBadGateway:
		return "link_failed"
	case status >= 500:
		return "error"
	case status >= 400:
		return "rejected"
	default:
		return strconv.Itoa(status)
	}
}
