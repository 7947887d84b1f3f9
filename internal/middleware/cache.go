package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"currencyapi/internal/cache"
	"currencyapi/internal/model"

	"github.com/gin-gonic/gin"
)

// CacheHeader set on responses replayed from the cache
const CacheHeader = "X-Cache"

// ResponseCache stores successful GET bodies under a key built from the path
// and the normalized query. Backend failures count as misses.
type ResponseCache struct {
	store     cache.Store
	prefix    string
	normalize func(model.Params) model.Params
}

// NewResponseCache normalize may be nil for routes whose query only
// carries include flags
func NewResponseCache(store cache.Store, prefix string) *ResponseCache {
	return &ResponseCache{store: store, prefix: prefix}
}

// Handler caches for ttl; normalize canonicalizes the params before keying
func (rc *ResponseCache) Handler(ttl time.Duration, normalize func(model.Params) model.Params) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc == nil || rc.store == nil || ttl <= 0 || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		params := model.ParseParams(c.Request.URL.RawQuery)
		if normalize != nil {
			params = normalize(params)
		}
		key := cache.Key(rc.prefix, c.Request.URL.Path, params.Encode())
		route := c.FullPath()
		ctx := c.Request.Context()

		body, ok, err := rc.store.Get(ctx, key)
		if err != nil {
			httpMetrics.CacheErrors.WithLabelValues("get").Inc()
			slog.Warn("cache get failed", "key", key, "error", err)
		}
		if ok {
			httpMetrics.CacheHits.WithLabelValues(route).Inc()
			c.Header(CacheHeader, "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			c.Abort()
			return
		}
		httpMetrics.CacheMisses.WithLabelValues(route).Inc()

		w := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if w.Status() != http.StatusOK || c.IsAborted() || len(c.Errors) > 0 {
			return
		}
		if err := rc.store.Set(ctx, key, w.body.Bytes(), ttl); err != nil {
			httpMetrics.CacheErrors.WithLabelValues("set").Inc()
			slog.Warn("cache set failed", "key", key, "error", err)
		}
	}
}

type bodyCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
