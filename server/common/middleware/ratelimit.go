package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"file_broker/server/common/log"
	"file_broker/server/common/transport/httpresp"
)

// WindowCounter increments key and returns the hit count within the current window.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit caps requests per authenticated caller in fixed windows. It must run
// after AuthRequired. Counter failures let the request through. Windows are
// whole seconds; anything shorter is raised to one second.
func RateLimit(counter WindowCounter, scope string, limit int, window time.Duration) gin.HandlerFunc {
	if window < time.Second {
		window = time.Second
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}
		callerID, ok := CallerID(c)
		if !ok {
			c.Next()
			return
		}

		bucket := time.Now().Unix() / int64(window.Seconds())
		key := "ratelimit:" + scope + ":" + callerID + ":" + strconv.FormatInt(bucket, 10)
		hits, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			log.Warnf("rate limit counter unavailable, allowing request: scope=%s caller=%s err=%v", scope, callerID, err)
			c.Next()
			return
		}
		if hits > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpresp.NewErrorResponse(httpresp.ErrTooManyRequests))
			return
		}
		c.Next()
	}
}
