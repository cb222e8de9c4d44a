package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	m.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

func (m *memStore) List(context.Context, string) ([]storage.Object, error) { return nil, nil }

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadStoresCover(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	svc := NewService(store, 1, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Upload(context.Background(), bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.True(t, strings.HasPrefix(res.Key, "covers/2026/03/"))
	assert.True(t, strings.HasSuffix(res.Key, ".png"))
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
	assert.Len(t, store.objects, 1)
}

func TestUploadRejects(t *testing.T) {
	svc := NewService(&memStore{objects: map[string][]byte{}}, 1, nil)

	_, err := svc.Upload(context.Background(), strings.NewReader("plain text, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.Upload(context.Background(), bytes.NewReader(make([]byte, 2<<20)))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = NewService(nil, 1, nil).Upload(context.Background(), strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func uploadRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "cover.png")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/api/admin", func(c *gin.Context) {
		c.Set(middleware.ContextKeyUser, &models.UserModel{Base: models.Base{ID: "w"}, Role: models.RoleWriter})
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(admin)
	return r
}

func TestUploadHandler(t *testing.T) {
	r := newRouter(NewService(&memStore{objects: map[string][]byte{}}, 1, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, pngBytes(t)))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"https://cdn.example.com/covers/`)
}

func TestUploadHandlerWithoutStorage(t *testing.T) {
	r := newRouter(NewService(nil, 1, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, pngBytes(t)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
