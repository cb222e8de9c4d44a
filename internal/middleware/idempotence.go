package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

const (
	idempotenceHeader = "Idempotency-Key"
	idempotenceTTL    = 60 * time.Second
	keepTTL           = -1 // redis.KeepTTL
)

// Idempotence rejects a repeated POST/PUT/PATCH while the first one is in
// flight or within a minute after it succeeded. The key is the
// Idempotency-Key header or a hash of the request.
func Idempotence(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}
		if store == nil {
			c.Next()
			return
		}

		key, err := resolveIdempotenceKey(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		redisKey := "inkwell:idempotence:" + key
		ctx := c.Request.Context()

		claimed, err := store.SetNX(ctx, redisKey, "0", idempotenceTTL)
		if err != nil {
			c.Next()
			return
		}
		if !claimed {
			msg := "identical request already succeeded, retry later"
			if val, _ := store.Get(ctx, redisKey); val == "0" {
				msg = "identical request is still being processed"
			}
			response.Conflict(c, msg)
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			_ = store.Set(ctx, redisKey, "1", keepTTL)
		} else {
			_ = store.Del(ctx, redisKey)
		}
	}
}

// resolveIdempotenceKey returns the idempotence key for the current request.
func resolveIdempotenceKey(c *gin.Context) (string, error) {
	if hdr := c.GetHeader(idempotenceHeader); hdr != "" {
		return hdr, nil
	}

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	}
	// Multipart uploads carry random boundaries; hashing them is pointless.
	if c.ContentType() == "multipart/form-data" {
		return "", nil
	}

	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + string(body) + "|" +
		c.Request.UserAgent() + "|" + c.ClientIP() + "|" + NormalizeToken(c.GetHeader("Authorization"))
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}
