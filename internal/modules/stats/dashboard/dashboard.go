// Package dashboard aggregates the admin overview numbers.
package dashboard

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/syndication/subscribe"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"gorm.io/gorm"
)

const recentActivityLimit = 10

type SubscriberStats interface {
	Stats(ctx context.Context) (subscribe.Stats, error)
}

type RecentActivity interface {
	Recent(ctx context.Context, limit int) ([]models.ActivityLogModel, error)
}

type PostStats struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
	Drafts    int64 `json:"drafts"`
	Featured  int64 `json:"featured"`
	Views     int64 `json:"views"`
}

type NotificationStats struct {
	Campaigns  int64 `json:"campaigns"`
	EmailsSent int64 `json:"emailsSent"`
	Scheduled  int64 `json:"scheduled"`
}

type Overview struct {
	Posts          PostStats                 `json:"posts"`
	Categories     int64                     `json:"categories"`
	Subscribers    subscribe.Stats           `json:"subscribers"`
	Notifications  NotificationStats         `json:"notifications"`
	RecentActivity []models.ActivityLogModel `json:"recentActivity"`
}

type Service struct {
	db          *gorm.DB
	subscribers SubscriberStats
	activity    RecentActivity
}

func NewService(db *gorm.DB, subscribers SubscriberStats, act RecentActivity) *Service {
	return &Service{db: db, subscribers: subscribers, activity: act}
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var out Overview

	if err := s.db.WithContext(ctx).Model(&models.PostModel{}).
		Select("COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN is_published THEN 1 ELSE 0 END), 0) AS published, " +
			"COALESCE(SUM(CASE WHEN is_featured THEN 1 ELSE 0 END), 0) AS featured, " +
			"COALESCE(SUM(view_count), 0) AS views").
		Scan(&out.Posts).Error; err != nil {
		return nil, fmt.Errorf("post stats: %w", err)
	}
	out.Posts.Drafts = out.Posts.Total - out.Posts.Published

	if err := s.db.WithContext(ctx).Model(&models.CategoryModel{}).Count(&out.Categories).Error; err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.EmailNotificationModel{}).
		Select("COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS campaigns, "+
			"COALESCE(SUM(sent_count), 0) AS emails_sent, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS scheduled",
			models.NotificationSent, models.NotificationScheduled).
		Scan(&out.Notifications).Error; err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}

	if s.subscribers != nil {
		st, err := s.subscribers.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("subscriber stats: %w", err)
		}
		out.Subscribers = st
	}

	out.RecentActivity = []models.ActivityLogModel{}
	if s.activity != nil {
		recent, err := s.activity.Recent(ctx, recentActivityLimit)
		if err != nil {
			return nil, fmt.Errorf("recent activity: %w", err)
		}
		out.RecentActivity = recent
	}
	return &out, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts GET /stats for writers and above.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/stats", middleware.RequireRole(models.RoleWriter), h.overview)
}

func (h *Handler) overview(c *gin.Context) {
	out, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, out)
}
