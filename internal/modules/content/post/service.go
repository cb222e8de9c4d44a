package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-cms/core/internal/database"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"github.com/inkwell-cms/core/internal/pkg/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound     = errors.New("post not found")
	ErrSlugExists       = errors.New("slug already exists")
	ErrInvalidSlug      = errors.New("slug must contain letters or digits")
	ErrEmptyTitle       = errors.New("title must not be blank")
	ErrCategoryNotFound = errors.New("category not found")
	ErrNotOwner         = errors.New("only the author or an admin can change this post")
)

const (
	defaultFeaturedLimit = 5
	defaultRelatedLimit  = 3
	maxSideListLimit     = 20
	sideEffectTimeout    = 2 * time.Minute
)

// ActivityLogger records audit entries.
type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

// PublishNotifier reacts to a post going live (admin alert, newsletter).
type PublishNotifier interface {
	PostPublished(ctx context.Context, post *models.PostModel) error
}

type Service struct {
	db       *gorm.DB
	activity ActivityLogger
	notifier PublishNotifier
	logger   *zap.Logger
	now      func() time.Time
	async    func(func())
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("PostService")
		}
	}
}

func WithActivity(a ActivityLogger) Option {
	return func(s *Service) { s.activity = a }
}

func WithNotifier(n PublishNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		logger: zap.NewNop(),
		now:    time.Now,
		async:  func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) published(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.PostModel{}).Where("posts.is_published = ?", true)
}

// List returns published posts, featured first then newest.
func (s *Service) List(ctx context.Context, q pagination.Query, lq ListQuery) ([]models.PostModel, response.Pagination, error) {
	tx := s.published(ctx)
	if lq.Category != "" {
		tx = tx.Joins("JOIN categories ON categories.id = posts.category_id").
			Where("categories.slug = ?", lq.Category)
	}
	if lq.Tag != "" {
		tx = tx.Where("posts.tags LIKE ?", tagPattern(lq.Tag))
	}
	if lq.Featured != nil {
		tx = tx.Where("posts.is_featured = ?", *lq.Featured)
	}
	if term := strings.TrimSpace(lq.Q); term != "" {
		like := "%" + escapeLike(term) + "%"
		tx = tx.Where("(posts.title LIKE ? OR posts.description LIKE ?)", like, like)
	}

	var posts []models.PostModel
	pag, err := pagination.Paginate(
		tx.Order("posts.is_featured DESC").Order("posts.published_at DESC"),
		q, &posts, withRelations)
	return posts, pag, err
}

// Featured returns the newest published featured posts.
func (s *Service) Featured(ctx context.Context, limit int) ([]models.PostModel, error) {
	limit = clampLimit(limit, defaultFeaturedLimit)
	posts := make([]models.PostModel, 0, limit)
	err := s.published(ctx).Where("posts.is_featured = ?", true).
		Preload("Category").Preload("Author").
		Order("posts.published_at DESC").Limit(limit).Find(&posts).Error
	return posts, err
}

// GetPublishedBySlug loads a published post with category and author.
func (s *Service) GetPublishedBySlug(ctx context.Context, postSlug string) (*models.PostModel, error) {
	var post models.PostModel
	err := s.published(ctx).Where("posts.slug = ?", postSlug).
		Preload("Category").Preload("Author").
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Related returns other published posts from the same category.
func (s *Service) Related(ctx context.Context, post *models.PostModel, limit int) ([]models.PostModel, error) {
	limit = clampLimit(limit, defaultRelatedLimit)
	posts := make([]models.PostModel, 0, limit)
	if post.CategoryID == nil || *post.CategoryID == "" {
		return posts, nil
	}
	err := s.published(ctx).
		Where("posts.category_id = ? AND posts.id <> ?", *post.CategoryID, post.ID).
		Preload("Category").
		Order("posts.published_at DESC").Limit(limit).Find(&posts).Error
	return posts, err
}

// IncrementViews bumps the counter without touching updated_at.
func (s *Service) IncrementViews(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.PostModel{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}

// AdminList returns posts of any status, newest first.
func (s *Service) AdminList(ctx context.Context, q pagination.Query, aq AdminListQuery) ([]models.PostModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.PostModel{})
	switch aq.Status {
	case "published":
		tx = tx.Where("posts.is_published = ?", true)
	case "draft":
		tx = tx.Where("posts.is_published = ?", false)
	}
	if aq.Category != "" {
		tx = tx.Where("posts.category_id = ?", aq.Category)
	}
	if term := strings.TrimSpace(aq.Q); term != "" {
		like := "%" + escapeLike(term) + "%"
		tx = tx.Where("(posts.title LIKE ? OR posts.slug LIKE ?)", like, like)
	}
	var posts []models.PostModel
	pag, err := pagination.Paginate(tx.Order("posts.created_at DESC"), q, &posts, withRelations)
	return posts, pag, err
}

// GetByID loads a post of any status.
func (s *Service) GetByID(ctx context.Context, id string) (*models.PostModel, error) {
	var post models.PostModel
	err := s.db.WithContext(ctx).Preload("Category").Preload("Author").
		First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Create validates and inserts a post authored by actor.
func (s *Service) Create(ctx context.Context, actor *models.UserModel, dto *CreatePostDTO) (*models.PostModel, error) {
	title := strings.TrimSpace(dto.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	postSlug := slug.Make(dto.Slug)
	if postSlug == "" {
		return nil, ErrInvalidSlug
	}
	if err := s.ensureSlugFree(ctx, postSlug, ""); err != nil {
		return nil, err
	}
	categoryID, err := s.resolveCategory(ctx, dto.CategoryID)
	if err != nil {
		return nil, err
	}

	post := models.PostModel{
		Title:       title,
		Slug:        postSlug,
		Description: strings.TrimSpace(dto.Description),
		Content:     dto.Content,
		CoverImage:  strings.TrimSpace(dto.CoverImage),
		AuthorID:    actor.ID,
		CategoryID:  categoryID,
		Tags:        models.StringArray(dto.Tags).Compact(true),
		IsPublished: dto.IsPublished,
		IsFeatured:  dto.IsFeatured,
	}
	if post.IsPublished {
		now := s.now()
		post.PublishedAt = &now
	}

	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrSlugExists
		}
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.Author = actor

	s.logActivity(ctx, models.ActivityPostCreated, "Created post "+post.Title, &post, actor)
	if post.IsPublished {
		s.announce(&post)
	}
	return &post, nil
}

// Update applies a partial update. WRITERs may only change their own posts.
func (s *Service) Update(ctx context.Context, actor *models.UserModel, id string, dto *UpdatePostDTO) (*models.PostModel, error) {
	if dto.Title != nil && strings.TrimSpace(*dto.Title) == "" {
		return nil, ErrEmptyTitle
	}
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, post) {
		return nil, ErrNotOwner
	}

	updates := map[string]interface{}{}
	if dto.Slug != nil {
		postSlug := slug.Make(*dto.Slug)
		if postSlug == "" {
			return nil, ErrInvalidSlug
		}
		if postSlug != post.Slug {
			if err := s.ensureSlugFree(ctx, postSlug, post.ID); err != nil {
				return nil, err
			}
			updates["slug"] = postSlug
		}
	}
	if dto.CategoryID != nil {
		categoryID, err := s.resolveCategory(ctx, dto.CategoryID)
		if err != nil {
			return nil, err
		}
		updates["category_id"] = categoryID
	}
	if dto.Title != nil {
		updates["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.Content != nil {
		updates["content"] = *dto.Content
	}
	if dto.Description != nil {
		updates["description"] = strings.TrimSpace(*dto.Description)
	}
	if dto.CoverImage != nil {
		updates["cover_image"] = strings.TrimSpace(*dto.CoverImage)
	}
	if dto.Tags != nil {
		updates["tags"] = models.StringArray(*dto.Tags).Compact(true)
	}
	if dto.IsFeatured != nil {
		updates["is_featured"] = *dto.IsFeatured
	}

	wentLive := false
	if dto.IsPublished != nil && *dto.IsPublished != post.IsPublished {
		updates["is_published"] = *dto.IsPublished
		if *dto.IsPublished {
			now := s.now()
			updates["published_at"] = &now
			wentLive = true
		} else {
			updates["published_at"] = nil
		}
	}

	if len(updates) == 0 {
		return post, nil
	}
	// A bare model keeps gorm from upserting the preloaded associations.
	if err := s.db.WithContext(ctx).Model(&models.PostModel{}).Where("id = ?", post.ID).
		Updates(updates).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrSlugExists
		}
		return nil, fmt.Errorf("update post: %w", err)
	}

	post, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wentLive {
		s.logActivity(ctx, models.ActivityPostPublished, "Published post "+post.Title, post, actor)
		s.announce(post)
	} else {
		s.logActivity(ctx, models.ActivityPostUpdated, "Updated post "+post.Title, post, actor)
	}
	return post, nil
}

// TogglePublish flips the published flag.
func (s *Service) TogglePublish(ctx context.Context, actor *models.UserModel, id string) (*models.PostModel, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := !post.IsPublished
	return s.Update(ctx, actor, id, &UpdatePostDTO{IsPublished: &next})
}

// ToggleFeature flips the featured flag.
func (s *Service) ToggleFeature(ctx context.Context, actor *models.UserModel, id string) (*models.PostModel, error) {
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := !post.IsFeatured
	return s.Update(ctx, actor, id, &UpdatePostDTO{IsFeatured: &next})
}

// Delete removes a post. WRITERs may only delete their own posts.
func (s *Service) Delete(ctx context.Context, actor *models.UserModel, id string) error {
	post, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canEdit(actor, post) {
		return ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Delete(&models.PostModel{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.logActivity(ctx, models.ActivityPostDeleted, "Deleted post "+post.Title, post, actor)
	return nil
}

func (s *Service) ensureSlugFree(ctx context.Context, postSlug, exceptID string) error {
	tx := s.db.WithContext(ctx).Model(&models.PostModel{}).Where("slug = ?", postSlug)
	if exceptID != "" {
		tx = tx.Where("id <> ?", exceptID)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSlugExists
	}
	return nil
}

// resolveCategory returns nil for an empty id and ErrCategoryNotFound for an
// unknown one.
func (s *Service) resolveCategory(ctx context.Context, id *string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*id)
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.CategoryModel{}).
		Where("id = ?", trimmed).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrCategoryNotFound
	}
	return &trimmed, nil
}

func (s *Service) logActivity(ctx context.Context, typ, title string, post *models.PostModel, actor *models.UserModel) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, activity.Entry{
		Type:      typ,
		Title:     title,
		Metadata:  map[string]interface{}{"postId": post.ID, "slug": post.Slug},
		CreatedBy: actorName(actor),
	})
}

// announce runs the publish side effects off the request path. Errors are
// logged only.
func (s *Service) announce(post *models.PostModel) {
	if s.notifier == nil {
		return
	}
	snapshot := *post
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.notifier.PostPublished(ctx, &snapshot); err != nil {
			s.logger.Warn("publish notification failed",
				zap.String("post", snapshot.ID), zap.Error(err))
		}
	})
}

func withRelations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Category").Preload("Author")
}

func canEdit(actor *models.UserModel, post *models.PostModel) bool {
	if actor == nil {
		return false
	}
	return actor.Role == models.RoleAdmin || post.OwnedBy(actor.ID)
}

func actorName(u *models.UserModel) string {
	if u == nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// tagPattern matches one element of the JSON-encoded tags column.
func tagPattern(tag string) string {
	return "%" + escapeLike(models.JSONString(strings.ToLower(strings.TrimSpace(tag)))) + "%"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxSideListLimit {
		return maxSideListLimit
	}
	return limit
}
