package post

import (
	"time"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
)

// CreatePostDTO is the request body for creating a post.
type CreatePostDTO struct {
	Title       string   `json:"title"       binding:"required,max=255"`
	Slug        string   `json:"slug"        binding:"required,max=191"`
	Content     string   `json:"content"     binding:"required"`
	Description string   `json:"description"`
	CoverImage  string   `json:"coverImage"  binding:"omitempty,max=512"`
	CategoryID  *string  `json:"categoryId"`
	Tags        []string `json:"tags"`
	IsPublished bool     `json:"isPublished"`
	IsFeatured  bool     `json:"isFeatured"`
}

// UpdatePostDTO is the request body for updating a post (all fields optional).
type UpdatePostDTO struct {
	Title       *string   `json:"title"       binding:"omitempty,min=1,max=255"`
	Slug        *string   `json:"slug"        binding:"omitempty,min=1,max=191"`
	Content     *string   `json:"content"     binding:"omitempty,min=1"`
	Description *string   `json:"description"`
	CoverImage  *string   `json:"coverImage"  binding:"omitempty,max=512"`
	CategoryID  *string   `json:"categoryId"`
	Tags        *[]string `json:"tags"`
	IsPublished *bool     `json:"isPublished"`
	IsFeatured  *bool     `json:"isFeatured"`
}

// ListQuery holds the public list filters.
type ListQuery struct {
	Category string `form:"category"`
	Tag      string `form:"tag"`
	Featured *bool  `form:"featured"`
	Q        string `form:"q"`
}

// AdminListQuery holds the admin list filters.
type AdminListQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=published draft"`
	Category string `form:"category"`
	Q        string `form:"q"`
}

type categorySummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// postResponse is the API response shape for a post.
type postResponse struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Slug           string                `json:"slug"`
	Description    string                `json:"description"`
	Content        string                `json:"content,omitempty"`
	ContentHTML    string                `json:"contentHtml,omitempty"`
	CoverImage     string                `json:"coverImage"`
	CategoryID     *string               `json:"categoryId"`
	Category       *categorySummary      `json:"category"`
	Author         *models.AuthorSummary `json:"author"`
	Tags           []string              `json:"tags"`
	IsPublished    bool                  `json:"isPublished"`
	IsFeatured     bool                  `json:"isFeatured"`
	PublishedAt    *time.Time            `json:"publishedAt"`
	ViewCount      int64                 `json:"viewCount"`
	ReadingMinutes int                   `json:"readingMinutes"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type responseOpts struct {
	withContent bool
	html        string
}

func toResponse(p *models.PostModel, opts responseOpts) postResponse {
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}
	resp := postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		CoverImage:  p.CoverImage,
		CategoryID:  p.CategoryID,
		Author:      p.Author.Summary(),
		Tags:        tags,
		IsPublished: p.IsPublished,
		IsFeatured:  p.IsFeatured,
		PublishedAt: p.PublishedAt,
		ViewCount:   p.ViewCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	resp.ReadingMinutes = markdown.ReadingMinutes(p.Content)
	if p.Category != nil {
		resp.Category = &categorySummary{
			ID:    p.Category.ID,
			Name:  p.Category.Name,
			Slug:  p.Category.Slug,
			Color: p.Category.Color,
			Icon:  p.Category.Icon,
		}
	}
	if opts.withContent {
		resp.Content = p.Content
		resp.ContentHTML = opts.html
	}
	return resp
}

func toResponses(posts []models.PostModel) []postResponse {
	items := make([]postResponse, len(posts))
	for i := range posts {
		items[i] = toResponse(&posts[i], responseOpts{})
	}
	return items
}
