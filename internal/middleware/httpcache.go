package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/pkg/metrics"
)

const (
	APICachePrefix          = "inkwell:api-cache:"
	defaultHTTPCacheTTL     = 15 * time.Second
	defaultHTTPCacheMaxBody = 1 << 20 // 1 MiB
	staleWhileRevalidate    = 60
)

type HTTPCacheOptions struct {
	TTL          time.Duration
	Disable      bool
	SkipPaths    []string
	MaxBodyBytes int
}

type cachedHTTPResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	BodyBase64  string `json:"body_base64"`
	Body        []byte `json:"-"`
}

type cacheBodyWriter struct {
	gin.ResponseWriter
	body         []byte
	maxBodyBytes int
	overflow     bool
	beforeWrite  func()
}

func (w *cacheBodyWriter) Write(data []byte) (int, error) {
	w.flushHeaders()
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheBodyWriter) WriteString(s string) (int, error) {
	w.flushHeaders()
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

// flushHeaders runs the header hook once, while headers are still mutable.
func (w *cacheBodyWriter) flushHeaders() {
	if w.beforeWrite != nil && !w.Written() {
		w.beforeWrite()
		w.beforeWrite = nil
	}
}

func (w *cacheBodyWriter) capture(data []byte) {
	if w.maxBodyBytes <= 0 || w.overflow || len(data) == 0 {
		return
	}
	remaining := w.maxBodyBytes - len(w.body)
	if remaining <= 0 || len(data) > remaining {
		w.overflow = true
		return
	}
	w.body = append(w.body, data...)
}

func normalizeHTTPCacheOptions(opts HTTPCacheOptions) HTTPCacheOptions {
	if opts.TTL <= 0 {
		opts.TTL = defaultHTTPCacheTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultHTTPCacheMaxBody
	}
	return opts
}

// HTTPCache serves anonymous GET responses from Redis for a short TTL.
// Signed-in users always hit the handlers.
func HTTPCache(store Store, opts HTTPCacheOptions) gin.HandlerFunc {
	options := normalizeHTTPCacheOptions(opts)
	return func(c *gin.Context) {
		if options.Disable || store == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if shouldSkipCachePath(path, options.SkipPaths) {
			c.Next()
			return
		}

		if IsAuthenticated(c) || c.GetHeader("Authorization") != "" {
			c.Next()
			setPrivateCacheHeader(c.Writer, c.Writer.Status())
			return
		}

		cacheKey := APICachePrefix + c.Request.URL.RequestURI()
		if payload, ok := readCachedResponse(c.Request.Context(), store, cacheKey); ok {
			metrics.CacheResults.WithLabelValues("hit").Inc()
			setCacheHeader(c.Writer, payload.Status, options.TTL, "hit")
			c.Data(payload.Status, payload.ContentType, payload.Body)
			c.Abort()
			return
		}
		metrics.CacheResults.WithLabelValues("miss").Inc()

		buffer := &cacheBodyWriter{
			ResponseWriter: c.Writer,
			maxBodyBytes:   options.MaxBodyBytes,
		}
		buffer.beforeWrite = func() {
			if isCacheableResponse(buffer.Status(), buffer.Header()) {
				setCacheHeader(buffer, buffer.Status(), options.TTL, "miss")
			}
		}
		c.Writer = buffer
		c.Next()

		status := c.Writer.Status()
		if !isCacheableResponse(status, c.Writer.Header()) {
			return
		}
		if buffer.overflow || len(buffer.body) == 0 {
			return
		}

		payload := cachedHTTPResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			BodyBase64:  base64.StdEncoding.EncodeToString(buffer.body),
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		if err := store.Set(c.Request.Context(), cacheKey, raw, options.TTL); err != nil {
			metrics.CacheResults.WithLabelValues("error").Inc()
		}
	}
}

// PurgeHTTPCache drops every cached public response. Called after content
// writes so readers see changes without waiting for the TTL.
func PurgeHTTPCache(ctx context.Context, store Store) error {
	if store == nil {
		return nil
	}
	return store.DelPattern(ctx, APICachePrefix+"*")
}

func readCachedResponse(ctx context.Context, store Store, cacheKey string) (cachedHTTPResponse, bool) {
	raw, err := store.Get(ctx, cacheKey)
	if err != nil || raw == "" {
		return cachedHTTPResponse{}, false
	}
	var payload cachedHTTPResponse
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return cachedHTTPResponse{}, false
	}
	if payload.Status <= 0 {
		payload.Status = http.StatusOK
	}
	if payload.ContentType == "" {
		payload.ContentType = "application/json; charset=utf-8"
	}
	body, err := base64.StdEncoding.DecodeString(payload.BodyBase64)
	if err != nil {
		return cachedHTTPResponse{}, false
	}
	payload.Body = body
	return payload, true
}

func shouldSkipCachePath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		p := strings.TrimSpace(pattern)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

func isCacheableResponse(status int, headers http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	cacheControl := strings.ToLower(headers.Get("Cache-Control"))
	return !strings.Contains(cacheControl, "no-cache") &&
		!strings.Contains(cacheControl, "no-store") &&
		!strings.Contains(cacheControl, "private")
}

func setPrivateCacheHeader(w gin.ResponseWriter, status int) {
	if status != http.StatusOK {
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=0, no-cache, no-store, must-revalidate")
}

func setCacheHeader(w gin.ResponseWriter, status int, ttl time.Duration, result string) {
	if status != http.StatusOK {
		return
	}
	w.Header().Set("X-Inkwell-Cache", result)
	if w.Header().Get("Cache-Control") != "" {
		return
	}
	secs := strconv.Itoa(int(ttl / time.Second))
	w.Header().Set("Cache-Control", "public, s-maxage="+secs+", stale-while-revalidate="+strconv.Itoa(staleWhileRevalidate))
}
