package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const optionKey = "admin_settings"

// Settings is the singleton site configuration editable from the admin UI.
type Settings struct {
	SiteName                string `json:"siteName"`
	SiteURL                 string `json:"siteUrl"`
	AdminEmail              string `json:"adminEmail"`
	NotifyOnNewSubscriber   bool   `json:"notifyOnNewSubscriber"`
	NotifyOnPostPublished   bool   `json:"notifyOnPostPublished"`
	AutoNewsletterOnPublish bool   `json:"autoNewsletterOnPublish"`
	NewsletterFooter        string `json:"newsletterFooter"`
}

// Defaults is the row written on first read.
func Defaults() Settings {
	return Settings{
		SiteName:              "Inkwell",
		NotifyOnNewSubscriber: true,
	}
}

type UpdateDTO struct {
	SiteName                *string `json:"siteName"   binding:"omitempty,min=1,max=120"`
	SiteURL                 *string `json:"siteUrl"    binding:"omitempty,url"`
	AdminEmail              *string `json:"adminEmail" binding:"omitempty,email"`
	NotifyOnNewSubscriber   *bool   `json:"notifyOnNewSubscriber"`
	NotifyOnPostPublished   *bool   `json:"notifyOnPostPublished"`
	AutoNewsletterOnPublish *bool   `json:"autoNewsletterOnPublish"`
	NewsletterFooter        *string `json:"newsletterFooter" binding:"omitempty,max=2000"`
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

// Service keeps the settings in memory and persists them as JSON in the
// options table.
type Service struct {
	db       *gorm.DB
	defaults Settings
	activity ActivityLogger

	mu     sync.RWMutex
	cached *Settings
}

func NewService(db *gorm.DB, defaults Settings, act ActivityLogger) *Service {
	return &Service{db: db, defaults: defaults, activity: act}
}

// Get returns the current settings, creating the row with defaults on first use.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		defer s.mu.RUnlock()
		return *s.cached, nil
	}
	s.mu.RUnlock()
	return s.load(ctx)
}

func (s *Service) load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// loadLocked must be called with s.mu held for writing.
func (s *Service) loadLocked(ctx context.Context) (Settings, error) {
	if s.cached != nil {
		return *s.cached, nil
	}

	var opt models.OptionModel
	err := s.db.WithContext(ctx).Where("name = ?", optionKey).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := s.defaults
		if err := s.persist(ctx, &defaults); err != nil {
			return Settings{}, err
		}
		s.cached = &defaults
		return defaults, nil
	}
	if err != nil {
		return Settings{}, err
	}

	cfg := s.defaults
	if err := json.Unmarshal([]byte(opt.Value), &cfg); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.cached = &cfg
	return cfg, nil
}

// Update applies a partial change and persists it. The merge runs against
// the stored settings while s.mu is held.
func (s *Service) Update(ctx context.Context, actor string, dto *UpdateDTO) (Settings, error) {
	next, changed, err := s.apply(ctx, dto)
	if err != nil {
		return Settings{}, err
	}
	if len(changed) > 0 && s.activity != nil {
		s.activity.Log(ctx, activity.Entry{
			Type:      models.ActivitySettingsUpdated,
			Title:     "Updated settings",
			Details:   strings.Join(changed, ", "),
			Metadata:  map[string]interface{}{"fields": changed},
			CreatedBy: actor,
		})
	}
	return next, nil
}

func (s *Service) apply(ctx context.Context, dto *UpdateDTO) (Settings, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		return Settings{}, nil, err
	}
	next := current
	changed := make([]string, 0, 7)
	setString := func(field string, dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != *dst {
			*dst = strings.TrimSpace(*v)
			changed = append(changed, field)
		}
	}
	setBool := func(field string, dst *bool, v *bool) {
		if v != nil && *v != *dst {
			*dst = *v
			changed = append(changed, field)
		}
	}
	setString("siteName", &next.SiteName, dto.SiteName)
	setString("siteUrl", &next.SiteURL, dto.SiteURL)
	if dto.AdminEmail != nil {
		lower := strings.ToLower(*dto.AdminEmail)
		setString("adminEmail", &next.AdminEmail, &lower)
	}
	setBool("notifyOnNewSubscriber", &next.NotifyOnNewSubscriber, dto.NotifyOnNewSubscriber)
	setBool("notifyOnPostPublished", &next.NotifyOnPostPublished, dto.NotifyOnPostPublished)
	setBool("autoNewsletterOnPublish", &next.AutoNewsletterOnPublish, dto.AutoNewsletterOnPublish)
	setString("newsletterFooter", &next.NewsletterFooter, dto.NewsletterFooter)

	if len(changed) == 0 {
		return current, nil, nil
	}
	if err := s.persist(ctx, &next); err != nil {
		return Settings{}, nil, err
	}
	s.cached = &next
	return next, changed, nil
}

// Invalidate drops the cached copy so the next Get reloads from the database.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) persist(ctx context.Context, cfg *Settings) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	opt := models.OptionModel{Name: optionKey, Value: string(raw)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}
