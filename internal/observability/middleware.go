package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const transportTagKey = "edgelink.transport"

type transportTag struct {
	path   string
	frames int
	result string
}

// TagTransport attaches the outcome of a transport call to the request so
// HTTPRequests can label its log line and metrics with it.
func TagTransport(c *gin.Context, path string, frames int, err error) {
	c.Set(transportTagKey, transportTag{path: path, frames: frames, result: ResultLabel(err)})
}

// HTTPRequests logs every request and records its count and latency for
// node. Requests tagged with TagTransport also carry the send path, frame
// count and result; untagged ones are labelled "none".
func HTTPRequests(node string, logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("node", node).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		tag := transportTag{result: "none"}
		if v, ok := c.Get(transportTagKey); ok {
			tag = v.(transportTag)
		}
		RecordHTTPRequest(node, c.Request.Method, route, tag.result, status, dur)

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		if tag.path != "" {
			event = event.Str("send_path", tag.path).Int("frames", tag.frames)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Str("result", tag.result).
			Dur("duration", dur).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}
