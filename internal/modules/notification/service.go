package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages email campaigns and their delivery.
type Service struct {
	db       *gorm.DB
	mailer   Mailer
	tasks    TaskTracker
	settings SettingsReader
	activity ActivityLogger
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

type Deps struct {
	DB       *gorm.DB
	Mailer   Mailer
	Tasks    TaskTracker
	Settings SettingsReader
	Activity ActivityLogger
	Logger   *zap.Logger
}

func NewService(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       deps.DB,
		mailer:   deps.Mailer,
		tasks:    deps.Tasks,
		settings: deps.Settings,
		activity: deps.Activity,
		opts:     opts.withDefaults(),
		logger:   logger.Named("NotificationService"),
		now:      time.Now,
	}
}

func (s *Service) List(ctx context.Context, q pagination.Query, lq ListQuery) ([]models.EmailNotificationModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.EmailNotificationModel{})
	if lq.Status != "" {
		tx = tx.Where("status = ?", lq.Status)
	}
	var rows []models.EmailNotificationModel
	pag, err := pagination.Paginate(tx.Order("created_at DESC"), q, &rows)
	return rows, pag, err
}

func (s *Service) Get(ctx context.Context, id string) (*models.EmailNotificationModel, error) {
	var n models.EmailNotificationModel
	err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create stores a draft, or a scheduled campaign when ScheduledAt is set.
func (s *Service) Create(ctx context.Context, actor string, dto *CreateDTO) (*models.EmailNotificationModel, error) {
	list := models.StringArray(dto.RecipientList).Compact(true)
	if err := validateRecipients(dto.RecipientType, list); err != nil {
		return nil, err
	}

	n := models.EmailNotificationModel{
		Subject:       strings.TrimSpace(dto.Subject),
		Content:       dto.Content,
		RecipientType: dto.RecipientType,
		RecipientList: list,
		Status:        models.NotificationDraft,
		CreatedBy:     actor,
	}
	if dto.ScheduledAt != nil {
		if !dto.ScheduledAt.After(s.now()) {
			return nil, ErrScheduleInPast
		}
		at := dto.ScheduledAt.UTC()
		n.ScheduledAt = &at
		n.Status = models.NotificationScheduled
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.log(ctx, models.ActivityNotificationCreated, "Created notification "+n.Subject, &n, actor)
	return &n, nil
}

// Update edits a draft or scheduled campaign.
func (s *Service) Update(ctx context.Context, id string, dto *UpdateDTO) (*models.EmailNotificationModel, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Editable() {
		return nil, ErrNotEditable
	}

	recipientType, list := n.RecipientType, n.RecipientList
	updates := map[string]interface{}{}
	if dto.Subject != nil {
		updates["subject"] = strings.TrimSpace(*dto.Subject)
	}
	if dto.Content != nil {
		updates["content"] = *dto.Content
	}
	if dto.RecipientType != nil {
		recipientType = *dto.RecipientType
		updates["recipient_type"] = recipientType
	}
	if dto.RecipientList != nil {
		list = models.StringArray(*dto.RecipientList).Compact(true)
		updates["recipient_list"] = list
	}
	if err := validateRecipients(recipientType, list); err != nil {
		return nil, err
	}
	switch {
	case dto.Unschedule:
		updates["scheduled_at"] = nil
		updates["status"] = models.NotificationDraft
	case dto.ScheduledAt != nil:
		if !dto.ScheduledAt.After(s.now()) {
			return nil, ErrScheduleInPast
		}
		updates["scheduled_at"] = dto.ScheduledAt.UTC()
		updates["status"] = models.NotificationScheduled
	}
	if len(updates) == 0 {
		return n, nil
	}

	// The status guard keeps an edit from racing a send that just claimed the row.
	res := s.db.WithContext(ctx).Model(&models.EmailNotificationModel{}).
		Where("id = ? AND status IN ?", n.ID, []string{models.NotificationDraft, models.NotificationScheduled}).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotEditable
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.Status == models.NotificationSending {
		return ErrStillSending
	}
	return s.db.WithContext(ctx).Delete(&models.EmailNotificationModel{}, "id = ?", n.ID).Error
}

func validateRecipients(recipientType string, list models.StringArray) error {
	switch recipientType {
	case models.RecipientAll, models.RecipientRecent:
		return nil
	case models.RecipientCustom:
		if len(list) == 0 {
			return ErrEmptyRecipientList
		}
		return nil
	default:
		return ErrInvalidRecipientType
	}
}

func (s *Service) log(ctx context.Context, typ, title string, n *models.EmailNotificationModel, actor string) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, activity.Entry{
		Type:  typ,
		Title: title,
		Metadata: map[string]interface{}{
			"notificationId": n.ID,
			"recipientType":  n.RecipientType,
			"sentCount":      n.SentCount,
			"failedCount":    n.FailedCount,
		},
		CreatedBy: actor,
	})
}
