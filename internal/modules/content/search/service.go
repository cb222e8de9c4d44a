package search

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxQueryRunes = 100
	excerptRunes  = 160
)

var ErrEmptyQuery = errors.New("search query is required")

// Service runs case-insensitive substring search over published posts.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

type ServiceOption func(*Service)

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("SearchService")
		}
	}
}

func NewService(db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{db: db, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search matches q against title, description, content and tags. The
// default utf8mb4 collations compare case-insensitively; the LOWER calls
// keep binary collations behaving the same.
func (s *Service) Search(ctx context.Context, q string, page pagination.Query) ([]Result, response.Pagination, error) {
	term := normalizeQuery(q)
	if term == "" {
		return nil, response.Pagination{}, ErrEmptyQuery
	}
	lower := strings.ToLower(term)
	like := "%" + escapeLike(lower) + "%"
	tagLike := "%" + escapeLike(jsonBody(lower)) + "%"

	tx := s.db.WithContext(ctx).Model(&models.PostModel{}).
		Where("posts.is_published = ?", true).
		Where("(LOWER(posts.title) LIKE ? OR LOWER(posts.description) LIKE ? OR LOWER(posts.content) LIKE ? OR LOWER(posts.tags) LIKE ?)",
			like, like, like, tagLike).
		Order("posts.published_at DESC")

	var posts []models.PostModel
	pag, err := pagination.Paginate(tx, page, &posts, func(db *gorm.DB) *gorm.DB {
		return db.Preload("Category")
	})
	if err != nil {
		return nil, response.Pagination{}, err
	}

	results := make([]Result, len(posts))
	for i := range posts {
		results[i] = toResult(&posts[i], term)
	}
	s.logger.Debug("search", zap.String("q", term), zap.Int64("hits", pag.Total))
	return results, pag, nil
}

func toResult(p *models.PostModel, term string) Result {
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}
	r := Result{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Excerpt:     snippet(markdown.PlainText(p.Content), term, excerptRunes),
		CoverImage:  p.CoverImage,
		Tags:        tags,
		PublishedAt: p.PublishedAt,
	}
	if p.Category != nil {
		r.CategorySlug = p.Category.Slug
	}
	return r
}

// snippet returns up to n runes of text centred on the first match of term.
func snippet(text, term string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	start := 0
	if idx := runeIndexFold(runes, []rune(term)); idx >= 0 {
		start = idx - n/4
		if start < 0 {
			start = 0
		}
	}
	end := start + n
	if end > len(runes) {
		end = len(runes)
		start = end - n
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

// jsonBody is s as it appears inside a stored JSON string, without quotes.
func jsonBody(s string) string {
	enc := models.JSONString(s)
	return enc[1 : len(enc)-1]
}

// runeIndexFold returns the rune offset of the first case-insensitive match of
// needle in haystack, or -1. Folding is per rune so offsets stay aligned.
func runeIndexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}

func normalizeQuery(q string) string {
	term := strings.Join(strings.Fields(q), " ")
	if utf8.RuneCountInString(term) > maxQueryRunes {
		term = string([]rune(term)[:maxQueryRunes])
	}
	return term
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
