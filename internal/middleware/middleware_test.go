package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	return nil
}

func (m *memStore) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = toString(value)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) DelPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *memStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	fmt.Sscan(m.data[key], &n)
	n++
	m.data[key] = fmt.Sprint(n)
	return n, nil
}

func (m *memStore) keysWithPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

type staticUsers map[string]*models.UserModel

func (s staticUsers) Resolve(_ context.Context, claims *jwt.Claims) (*models.UserModel, error) {
	if u, ok := s[claims.Subject]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("unknown subject %s", claims.Subject)
}

const testSecret = "test-secret"

func signToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.SignHS256(testSecret, jwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return token
}

func newAuthRouter(t *testing.T, min string) *gin.Engine {
	t.Helper()
	v, err := jwt.NewVerifier(jwt.Options{Secret: testSecret})
	require.NoError(t, err)
	users := staticUsers{
		"user_admin":  {Base: models.Base{ID: "u1"}, Email: "admin@example.com", Role: models.RoleAdmin},
		"user_viewer": {Base: models.Base{ID: "u2"}, Email: "reader@example.com", Role: models.RoleViewer},
	}
	r := gin.New()
	r.GET("/guarded", Auth(v, users, zap.NewNop()), RequireRole(min), func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c))
	})
	return r
}

func TestAuthRejectsMissingToken(t *testing.T) {
	r := newAuthRouter(t, models.RoleViewer)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRoleGate(t *testing.T) {
	r := newAuthRouter(t, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user_viewer"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: signToken(t, "user_admin")})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@example.com", w.Body.String())
}

func TestAuthRejectsForeignSignature(t *testing.T) {
	r := newAuthRouter(t, models.RoleViewer)
	token, err := jwt.SignHS256("another-secret", jwt.Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user_admin",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken("   "))
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	store := newMemStore()
	r := gin.New()
	r.Use(RateLimit(store, RateLimitOptions{Name: "subscribe", Max: 2, Window: time.Hour}))
	r.POST("/subscribe", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscribe", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIdempotenceRejectsReplay(t *testing.T) {
	store := newMemStore()
	calls := 0
	r := gin.New()
	r.Use(Idempotence(store))
	r.POST("/posts", func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title":"a"}`))
		req.Header.Set("Idempotency-Key", "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusConflict, send())
	assert.Equal(t, 1, calls)
	assert.Equal(t, "1", store.data["inkwell:idempotence:k1"])
}

func TestIdempotenceReleasesOnFailure(t *testing.T) {
	store := newMemStore()
	calls := 0
	r := gin.New()
	r.Use(Idempotence(store))
	r.POST("/posts", func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadRequest)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestHTTPCacheServesSecondHitFromStore(t *testing.T) {
	store := newMemStore()
	calls := 0
	r := gin.New()
	r.Use(HTTPCache(store, HTTPCacheOptions{TTL: time.Minute, SkipPaths: []string{"/api/admin/*"}}))
	r.GET("/api/posts", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})
	r.GET("/api/admin/posts", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts?page=1", nil))
	assert.Equal(t, "miss", w.Header().Get("X-Inkwell-Cache"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts?page=1", nil))
	assert.Equal(t, "hit", w.Header().Get("X-Inkwell-Cache"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
	assert.Equal(t, 1, calls)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/posts", nil))
	assert.Empty(t, w.Header().Get("X-Inkwell-Cache"))
	assert.Equal(t, 2, calls)

	require.NoError(t, PurgeHTTPCache(context.Background(), store))
	assert.Zero(t, store.keysWithPrefix(APICachePrefix))
}
