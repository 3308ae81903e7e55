package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ViewResource names the cached resource a route reads: "/ports/:ppid" is
// "ports". Requests that matched no route share "unmatched".
func ViewResource(route string) string {
	route = strings.Trim(route, "/")
	if route == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(route, '/'); i >= 0 {
		route = route[:i]
	}
	return route
}

// ViewLogger logs one line per cache view request. age reports how stale
// the served cache is; it may be nil.
func ViewLogger(logger zerolog.Logger, age func() time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event = event.
			Str("resource", ViewResource(c.FullPath())).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size())
		for _, key := range []string{"ppid", "vcsid"} {
			if v := c.Param(key); v != "" {
				event = event.Str(key, v)
			}
		}
		if age != nil {
			if a := age(); a > 0 {
				event = event.Dur("cache_age", a)
			}
		}
		event.Msg("view_request")
	}
}

func ViewMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordViewRequest(ViewResource(c.FullPath()), c.Writer.Status(), time.Since(start))
	}
}
