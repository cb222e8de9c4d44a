package feed

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/system/settings"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const itemLimit = 20

type SettingsReader interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Service builds RSS 2.0 and Atom documents for the latest published posts.
type Service struct {
	db       *gorm.DB
	settings SettingsReader
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, st SettingsReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, settings: st, logger: logger.Named("FeedService"), now: time.Now}
}

type item struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time
	Summary   string
	HTML      string
	Category  string
}

type channel struct {
	Title       string
	Link        string
	Description string
	Items       []item
}

func (s *Service) load(ctx context.Context) (*channel, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	var posts []models.PostModel
	err = s.db.WithContext(ctx).
		Preload("Category").
		Where("is_published = ?", true).
		Order("published_at DESC").
		Limit(itemLimit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}

	site := strings.TrimRight(st.SiteURL, "/")
	ch := &channel{
		Title:       st.SiteName,
		Link:        site,
		Description: st.SiteName + " latest posts",
		Items:       make([]item, 0, len(posts)),
	}
	for _, p := range posts {
		html, err := markdown.Render(p.Content)
		if err != nil {
			s.logger.Warn("render feed item", zap.String("post", p.ID), zap.Error(err))
			html = ""
		}
		summary := p.Description
		if summary == "" {
			summary = markdown.Excerpt(p.Content, 280)
		}
		published := p.CreatedAt
		if p.PublishedAt != nil {
			published = *p.PublishedAt
		}
		it := item{
			Title:     p.Title,
			Link:      site + "/posts/" + p.Slug,
			GUID:      p.ID,
			Published: published,
			Summary:   summary,
			HTML:      html,
		}
		if p.Category != nil {
			it.Category = p.Category.Name
		}
		ch.Items = append(ch.Items, it)
	}
	return ch, nil
}

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Content string     `xml:"xmlns:content,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	PubDate     string  `xml:"pubDate"`
	Category    string  `xml:"category,omitempty"`
	Description string  `xml:"description"`
	Encoded     cdata   `xml:"content:encoded"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// RSS renders the channel as RSS 2.0.
func (s *Service) RSS(ctx context.Context) ([]byte, error) {
	ch, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	doc := rssDoc{
		Version: "2.0",
		Content: "http://purl.org/rss/1.0/modules/content/",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			LastBuildDate: s.now().UTC().Format(time.RFC1123Z),
		},
	}
	for _, it := range ch.Items {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       it.Title,
			Link:        it.Link,
			GUID:        rssGUID{Value: it.GUID},
			PubDate:     it.Published.UTC().Format(time.RFC1123Z),
			Category:    it.Category,
			Description: it.Summary,
			Encoded:     cdata{Value: it.HTML},
		})
	}
	return marshal(doc)
}

type atomDoc struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Link    atomLink    `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Link    atomLink    `xml:"link"`
	Updated string      `xml:"updated"`
	Summary string      `xml:"summary"`
	Content atomContent `xml:"content"`
}

type atomContent struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Atom renders the channel as an Atom 1.0 feed.
func (s *Service) Atom(ctx context.Context) ([]byte, error) {
	ch, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	updated := s.now().UTC()
	if len(ch.Items) > 0 {
		updated = ch.Items[0].Published.UTC()
	}
	doc := atomDoc{
		Title:   ch.Title,
		ID:      ch.Link + "/",
		Updated: updated.Format(time.RFC3339),
		Link:    atomLink{Href: ch.Link},
	}
	for _, it := range ch.Items {
		doc.Entries = append(doc.Entries, atomEntry{
			Title:   it.Title,
			ID:      "urn:uuid:" + it.GUID,
			Link:    atomLink{Href: it.Link},
			Updated: it.Published.UTC().Format(time.RFC3339),
			Summary: it.Summary,
			Content: atomContent{Type: "html", Value: it.HTML},
		})
	}
	return marshal(doc)
}

func marshal(doc interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the feed endpoints. /feed accepts ?type=atom.
func (h *Handler) RegisterRoutes(public *gin.RouterGroup) {
	public.GET("/feed", func(c *gin.Context) {
		h.render(c, c.DefaultQuery("type", "rss"))
	})
	public.GET("/feed.xml", func(c *gin.Context) { h.render(c, "rss") })
	public.GET("/atom.xml", func(c *gin.Context) { h.render(c, "atom") })
}

func (h *Handler) render(c *gin.Context, kind string) {
	var (
		body        []byte
		err         error
		contentType = "application/rss+xml; charset=utf-8"
	)
	if kind == "atom" {
		contentType = "application/atom+xml; charset=utf-8"
		body, err = h.svc.Atom(c.Request.Context())
	} else {
		body, err = h.svc.RSS(c.Request.Context())
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, body)
}
