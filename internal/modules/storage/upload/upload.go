package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"github.com/inkwell-cms/core/internal/pkg/storage"
	"go.uber.org/zap"
)

var (
	ErrStorageDisabled = errors.New("object storage is not configured")
	ErrTooLarge        = errors.New("file exceeds the upload limit")
	ErrUnsupportedType = errors.New("only jpeg, png, webp and gif images are accepted")
	ErrEmptyFile       = errors.New("file is empty")
)

var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Result is what the admin UI stores as a post cover.
type Result struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int    `json:"size"`
	ContentType string `json:"contentType"`
}

// Service stores cover images. A nil store means uploads are unavailable.
type Service struct {
	store    storage.Store
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store storage.Store, maxMB int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMB <= 0 {
		maxMB = 5
	}
	return &Service{
		store:    store,
		maxBytes: int64(maxMB) << 20,
		logger:   logger.Named("UploadService"),
		now:      time.Now,
	}
}

// Upload sniffs the payload, rejects anything but the allowed image types and
// stores it under covers/YYYY/MM/.
func (s *Service) Upload(ctx context.Context, r io.Reader) (*Result, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	body, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(body)) > s.maxBytes {
		return nil, ErrTooLarge
	}

	contentType := http.DetectContentType(body)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	key := storage.CoverKey(s.now().UTC(), ext)
	url, err := s.store.Put(ctx, key, body, contentType)
	if err != nil {
		return nil, err
	}
	s.logger.Info("cover uploaded", zap.String("key", key), zap.Int("size", len(body)))
	return &Result{URL: url, Key: key, Size: len(body), ContentType: contentType}, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.POST("/uploads", middleware.RequireRole(models.RoleWriter), h.upload)
}

func (h *Handler) upload(c *gin.Context) {
	if h.svc.store == nil {
		response.Error(c, http.StatusServiceUnavailable, ErrStorageDisabled.Error())
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > h.svc.maxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, ErrTooLarge.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(c.Request.Context(), file)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ErrUnsupportedType), errors.Is(err, ErrEmptyFile):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, res)
}
