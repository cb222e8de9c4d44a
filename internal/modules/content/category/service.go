package category

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwell-cms/core/internal/database"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/slug"
	"gorm.io/gorm"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category name or slug already exists")
	ErrCategoryInUse    = errors.New("category is used by existing posts")
	ErrInvalidSlug      = errors.New("slug must contain letters or digits")
)

type CreateCategoryDTO struct {
	Name        string `json:"name"        binding:"required,max=191"`
	Slug        string `json:"slug"        binding:"required,max=191"`
	Description string `json:"description"`
	Color       string `json:"color"       binding:"omitempty,max=32"`
	Icon        string `json:"icon"        binding:"omitempty,max=64"`
}

type UpdateCategoryDTO struct {
	Name        *string `json:"name"        binding:"omitempty,min=1,max=191"`
	Slug        *string `json:"slug"        binding:"omitempty,min=1,max=191"`
	Description *string `json:"description"`
	Color       *string `json:"color"       binding:"omitempty,max=32"`
	Icon        *string `json:"icon"        binding:"omitempty,max=64"`
}

// WithCount is a category plus the number of published posts in it.
type WithCount struct {
	models.CategoryModel
	PostCount int64 `json:"postCount"`
}

// ActivityLogger records audit entries.
type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

type Service struct {
	db       *gorm.DB
	activity ActivityLogger
}

func NewService(db *gorm.DB, act ActivityLogger) *Service {
	return &Service{db: db, activity: act}
}

// List returns every category with its published post count, by name.
func (s *Service) List(ctx context.Context) ([]WithCount, error) {
	rows := make([]WithCount, 0)
	err := s.db.WithContext(ctx).
		Table("categories").
		Select("categories.*, COUNT(posts.id) AS post_count").
		Joins("LEFT JOIN posts ON posts.category_id = categories.id AND posts.is_published = ?", true).
		Group("categories.id").
		Order("categories.name ASC").
		Scan(&rows).Error
	return rows, err
}

func (s *Service) GetBySlug(ctx context.Context, categorySlug string) (*models.CategoryModel, error) {
	return s.first(ctx, "slug = ?", categorySlug)
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.CategoryModel, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Service) first(ctx context.Context, query string, arg interface{}) (*models.CategoryModel, error) {
	var cat models.CategoryModel
	err := s.db.WithContext(ctx).Where(query, arg).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Service) Create(ctx context.Context, actor string, dto *CreateCategoryDTO) (*models.CategoryModel, error) {
	name := strings.TrimSpace(dto.Name)
	catSlug := slug.Make(dto.Slug)
	if catSlug == "" {
		return nil, ErrInvalidSlug
	}
	if err := s.ensureUnique(ctx, name, catSlug, ""); err != nil {
		return nil, err
	}

	cat := models.CategoryModel{
		Name:        name,
		Slug:        catSlug,
		Description: strings.TrimSpace(dto.Description),
		Color:       strings.TrimSpace(dto.Color),
		Icon:        strings.TrimSpace(dto.Icon),
	}
	if err := s.db.WithContext(ctx).Create(&cat).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.log(ctx, models.ActivityCategoryCreated, "Created category "+cat.Name, &cat, actor)
	return &cat, nil
}

func (s *Service) Update(ctx context.Context, actor, id string, dto *UpdateCategoryDTO) (*models.CategoryModel, error) {
	cat, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name, catSlug := cat.Name, cat.Slug
	updates := map[string]interface{}{}
	if dto.Name != nil {
		name = strings.TrimSpace(*dto.Name)
		updates["name"] = name
	}
	if dto.Slug != nil {
		catSlug = slug.Make(*dto.Slug)
		if catSlug == "" {
			return nil, ErrInvalidSlug
		}
		updates["slug"] = catSlug
	}
	if dto.Description != nil {
		updates["description"] = strings.TrimSpace(*dto.Description)
	}
	if dto.Color != nil {
		updates["color"] = strings.TrimSpace(*dto.Color)
	}
	if dto.Icon != nil {
		updates["icon"] = strings.TrimSpace(*dto.Icon)
	}
	if len(updates) == 0 {
		return cat, nil
	}
	if name != cat.Name || catSlug != cat.Slug {
		if err := s.ensureUnique(ctx, name, catSlug, cat.ID); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.CategoryModel{}).Where("id = ?", cat.ID).
		Updates(updates).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	cat, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log(ctx, models.ActivityCategoryUpdated, "Updated category "+cat.Name, cat, actor)
	return cat, nil
}

// Delete removes a category no post refers to.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	cat, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	var inUse int64
	if err := s.db.WithContext(ctx).Model(&models.PostModel{}).
		Where("category_id = ?", cat.ID).Count(&inUse).Error; err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf("%w (%d posts)", ErrCategoryInUse, inUse)
	}
	if err := s.db.WithContext(ctx).Delete(&models.CategoryModel{}, "id = ?", cat.ID).Error; err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.log(ctx, models.ActivityCategoryDeleted, "Deleted category "+cat.Name, cat, actor)
	return nil
}

func (s *Service) ensureUnique(ctx context.Context, name, catSlug, exceptID string) error {
	tx := s.db.WithContext(ctx).Model(&models.CategoryModel{}).
		Where("(name = ? OR slug = ?)", name, catSlug)
	if exceptID != "" {
		tx = tx.Where("id <> ?", exceptID)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrCategoryExists
	}
	return nil
}

func (s *Service) log(ctx context.Context, typ, title string, cat *models.CategoryModel, actor string) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, activity.Entry{
		Type:      typ,
		Title:     title,
		Metadata:  map[string]interface{}{"categoryId": cat.ID, "slug": cat.Slug},
		CreatedBy: actor,
	})
}
