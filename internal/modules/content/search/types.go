package search

import "time"

// Result is one search hit.
type Result struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	Excerpt      string     `json:"excerpt"`
	CoverImage   string     `json:"coverImage"`
	Tags         []string   `json:"tags"`
	CategorySlug string     `json:"categorySlug,omitempty"`
	PublishedAt  *time.Time `json:"publishedAt"`
}
