package activity

import (
	"context"
	"time"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 50
	writeTimeout       = 5 * time.Second
)

// Entry is one audit record to append.
type Entry struct {
	Type      string
	Title     string
	Details   string
	Metadata  map[string]interface{}
	CreatedBy string
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger.Named("ActivityService")}
}

// Log appends an entry. Failures are logged and swallowed so callers never
// fail because of the audit trail.
func (s *Service) Log(ctx context.Context, e Entry) {
	// Detach from request cancellation but keep a bound.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	row := models.ActivityLogModel{
		Type:      e.Type,
		Title:     e.Title,
		Details:   e.Details,
		Metadata:  e.Metadata,
		CreatedBy: e.CreatedBy,
	}
	if row.Metadata == nil {
		row.Metadata = map[string]interface{}{}
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Warn("write activity log failed",
			zap.String("type", e.Type),
			zap.String("title", e.Title),
			zap.Error(err))
	}
}

// List pages through the log newest first, optionally filtered by type.
func (s *Service) List(ctx context.Context, q pagination.Query, typ string) ([]models.ActivityLogModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.ActivityLogModel{})
	if typ != "" {
		tx = tx.Where("type = ?", typ)
	}
	var rows []models.ActivityLogModel
	pag, err := pagination.Paginate(tx.Order("created_at DESC"), q, &rows)
	return rows, pag, err
}

// Recent returns the latest entries for the dashboard.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.ActivityLogModel, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows := make([]models.ActivityLogModel, 0, limit)
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
