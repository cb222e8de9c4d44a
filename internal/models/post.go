package models

import "time"

// PostModel is a blog post. Content is markdown.
type PostModel struct {
	Base
	Title       string         `json:"title"       gorm:"size:255;not null"`
	Slug        string         `json:"slug"        gorm:"size:191;uniqueIndex;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Content     string         `json:"content"     gorm:"type:longtext"`
	CoverImage  string         `json:"coverImage"  gorm:"size:512"`
	AuthorID    string         `json:"authorId"    gorm:"type:char(36);index"`
	Author      *UserModel     `json:"author,omitempty"   gorm:"foreignKey:AuthorID"`
	CategoryID  *string        `json:"categoryId"  gorm:"type:char(36);index"`
	Category    *CategoryModel `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Tags        StringArray    `json:"tags"        gorm:"type:longtext"`
	IsPublished bool           `json:"isPublished" gorm:"not null;index"`
	IsFeatured  bool           `json:"isFeatured"  gorm:"not null;index"`
	PublishedAt *time.Time     `json:"publishedAt" gorm:"index"`
	ViewCount   int64          `json:"viewCount"   gorm:"not null"`
}

func (PostModel) TableName() string { return "posts" }

// OwnedBy reports whether userID authored the post.
func (p PostModel) OwnedBy(userID string) bool {
	return p.AuthorID != "" && p.AuthorID == userID
}
