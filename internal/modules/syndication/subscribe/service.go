package subscribe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-cms/core/internal/database"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadySubscribed  = errors.New("email is already subscribed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

const (
	recentWindow      = 30 * 24 * time.Hour
	sideEffectTimeout = 30 * time.Second
)

type SubscribeDTO struct {
	Email string `json:"email" binding:"required,email,max=191"`
}

type UnsubscribeDTO struct {
	Email string `json:"email" binding:"required,email"`
}

type ListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active inactive"`
	Q      string `form:"q"`
}

// Stats summarizes the subscriber table for the admin dashboard.
type Stats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Recent   int64 `json:"recent"` // active, joined in the last 30 days
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

// AdminNotifier tells the site owner about a new subscriber.
type AdminNotifier interface {
	SubscriberJoined(ctx context.Context, email string) error
}

type Service struct {
	db       *gorm.DB
	activity ActivityLogger
	notifier AdminNotifier
	logger   *zap.Logger
	now      func() time.Time
	async    func(func())
}

func NewService(db *gorm.DB, act ActivityLogger, notifier AdminNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		activity: act,
		notifier: notifier,
		logger:   logger.Named("SubscribeService"),
		now:      time.Now,
		async:    func(fn func()) { go fn() },
	}
}

// Subscribe registers email. An inactive subscriber is reactivated and
// reported with reactivated=true.
func (s *Service) Subscribe(ctx context.Context, email string) (sub *models.SubscriberModel, reactivated bool, err error) {
	email = NormalizeEmail(email)

	existing, err := s.findBy(ctx, "email = ?", email)
	if err != nil && !errors.Is(err, ErrSubscriberNotFound) {
		return nil, false, err
	}

	now := s.now()
	switch {
	case existing != nil && existing.IsActive:
		return nil, false, ErrAlreadySubscribed
	case existing != nil:
		if err := s.db.WithContext(ctx).Model(&models.SubscriberModel{}).Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"is_active":       true,
				"subscribed_at":   now,
				"unsubscribed_at": nil,
			}).Error; err != nil {
			return nil, false, fmt.Errorf("reactivate subscriber: %w", err)
		}
		existing.IsActive = true
		existing.SubscribedAt = now
		existing.UnsubscribedAt = nil
		sub, reactivated = existing, true
	default:
		token, err := newToken()
		if err != nil {
			return nil, false, err
		}
		sub = &models.SubscriberModel{
			Email:        email,
			IsActive:     true,
			SubscribedAt: now,
			Token:        token,
		}
		if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
			if database.IsDuplicateKey(err) {
				return nil, false, ErrAlreadySubscribed
			}
			return nil, false, fmt.Errorf("create subscriber: %w", err)
		}
	}

	title := "New subscriber " + email
	if reactivated {
		title = "Subscriber returned " + email
	}
	s.log(ctx, models.ActivitySubscriberJoined, title, sub)
	s.notifyAdmin(email)
	return sub, reactivated, nil
}

// UnsubscribeByEmail marks the subscriber inactive.
func (s *Service) UnsubscribeByEmail(ctx context.Context, email string) (*models.SubscriberModel, error) {
	sub, err := s.findBy(ctx, "email = ?", NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return sub, s.deactivate(ctx, sub)
}

// UnsubscribeByToken marks the subscriber owning the link token inactive.
func (s *Service) UnsubscribeByToken(ctx context.Context, token string) (*models.SubscriberModel, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSubscriberNotFound
	}
	sub, err := s.findBy(ctx, "token = ?", token)
	if err != nil {
		return nil, err
	}
	return sub, s.deactivate(ctx, sub)
}

func (s *Service) deactivate(ctx context.Context, sub *models.SubscriberModel) error {
	if !sub.IsActive {
		return nil
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.SubscriberModel{}).Where("id = ?", sub.ID).
		Updates(map[string]interface{}{"is_active": false, "unsubscribed_at": now}).Error; err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	sub.IsActive = false
	sub.UnsubscribedAt = &now
	s.log(ctx, models.ActivitySubscriberLeft, "Unsubscribed "+sub.Email, sub)
	return nil
}

func (s *Service) List(ctx context.Context, q pagination.Query, lq ListQuery) ([]models.SubscriberModel, response.Pagination, error) {
	tx := s.filtered(ctx, lq).Order("subscribed_at DESC")
	var subs []models.SubscriberModel
	pag, err := pagination.Paginate(tx, q, &subs)
	return subs, pag, err
}

// All returns every subscriber matching the filters, for export.
func (s *Service) All(ctx context.Context, lq ListQuery) ([]models.SubscriberModel, error) {
	subs := make([]models.SubscriberModel, 0)
	err := s.filtered(ctx, lq).Order("subscribed_at ASC").Find(&subs).Error
	return subs, err
}

func (s *Service) filtered(ctx context.Context, lq ListQuery) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&models.SubscriberModel{})
	switch lq.Status {
	case "active":
		tx = tx.Where("is_active = ?", true)
	case "inactive":
		tx = tx.Where("is_active = ?", false)
	}
	if term := strings.TrimSpace(lq.Q); term != "" {
		tx = tx.Where("email LIKE ?", "%"+escapeLike(strings.ToLower(term))+"%")
	}
	return tx
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	base := func() *gorm.DB { return s.db.WithContext(ctx).Model(&models.SubscriberModel{}) }
	if err := base().Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := base().Where("is_active = ?", true).Count(&st.Active).Error; err != nil {
		return st, err
	}
	if err := base().Where("is_active = ? AND subscribed_at >= ?", true, s.now().Add(-recentWindow)).
		Count(&st.Recent).Error; err != nil {
		return st, err
	}
	st.Inactive = st.Total - st.Active
	return st, nil
}

func (s *Service) Delete(ctx context.Context, actor, id string) error {
	sub, err := s.findBy(ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.SubscriberModel{}, "id = ?", sub.ID).Error; err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if s.activity != nil {
		s.activity.Log(ctx, activity.Entry{
			Type:      models.ActivitySubscriberDeleted,
			Title:     "Deleted subscriber " + sub.Email,
			Metadata:  map[string]interface{}{"subscriberId": sub.ID},
			CreatedBy: actor,
		})
	}
	return nil
}

func (s *Service) findBy(ctx context.Context, query string, arg interface{}) (*models.SubscriberModel, error) {
	var sub models.SubscriberModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Service) log(ctx context.Context, typ, title string, sub *models.SubscriberModel) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, activity.Entry{
		Type:     typ,
		Title:    title,
		Metadata: map[string]interface{}{"subscriberId": sub.ID},
	})
}

func (s *Service) notifyAdmin(email string) {
	if s.notifier == nil {
		return
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.notifier.SubscriberJoined(ctx, email); err != nil {
			s.logger.Warn("new subscriber alert failed", zap.String("email", email), zap.Error(err))
		}
	})
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
