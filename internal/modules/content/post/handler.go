package post

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/markdown"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"go.uber.org/zap"
)

// Handler handles post HTTP requests.
type Handler struct {
	svc    *Service
	logger *zap.Logger
	purge  func(ctx context.Context)
}

// NewHandler wires the post routes. purge, when set, drops cached public
// responses after a write.
func NewHandler(svc *Service, logger *zap.Logger, purge func(ctx context.Context)) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("PostHandler"), purge: purge}
}

// RegisterRoutes mounts the public reader routes and the authenticated admin routes.
func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup) {
	posts := public.Group("/posts")
	posts.GET("", h.list)
	posts.GET("/featured", h.featured)
	posts.GET("/:slug", h.getBySlug)
	posts.GET("/:slug/related", h.related)

	ap := admin.Group("/posts", middleware.RequireRole(models.RoleWriter))
	ap.GET("", h.adminList)
	ap.GET("/:id", h.adminGet)
	ap.POST("", h.create)
	ap.PUT("/:id", h.update)
	ap.PATCH("/:id", h.update)
	ap.PATCH("/:id/publish", h.togglePublish)
	ap.PATCH("/:id/feature", h.toggleFeature)
	ap.DELETE("/:id", h.delete)
}

// list GET /posts
func (h *Handler) list(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	posts, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c), lq)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, toResponses(posts), pag)
}

// featured GET /posts/featured
func (h *Handler) featured(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	posts, err := h.svc.Featured(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(posts))
}

// getBySlug GET /posts/:slug
func (h *Handler) getBySlug(c *gin.Context) {
	post, err := h.svc.GetPublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}

	html, err := markdown.Render(post.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	id := post.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.svc.IncrementViews(ctx, id); err != nil {
			h.logger.Debug("increment views failed", zap.String("post", id), zap.Error(err))
		}
	}()

	response.OK(c, toResponse(post, responseOpts{withContent: true, html: html}))
}

// related GET /posts/:slug/related
func (h *Handler) related(c *gin.Context) {
	post, err := h.svc.GetPublishedBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	posts, err := h.svc.Related(c.Request.Context(), post, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(posts))
}

func (h *Handler) adminList(c *gin.Context) {
	var aq AdminListQuery
	if err := c.ShouldBindQuery(&aq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	posts, pag, err := h.svc.AdminList(c.Request.Context(), pagination.FromContext(c), aq)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, toResponses(posts), pag)
}

func (h *Handler) adminGet(c *gin.Context) {
	post, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(post, responseOpts{withContent: true}))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.svc.Create(c.Request.Context(), middleware.CurrentUser(c), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.Created(c, toResponse(post, responseOpts{withContent: true}))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.svc.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.OK(c, toResponse(post, responseOpts{withContent: true}))
}

func (h *Handler) togglePublish(c *gin.Context) {
	post, err := h.svc.TogglePublish(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.OK(c, toResponse(post, responseOpts{}))
}

func (h *Handler) toggleFeature(c *gin.Context) {
	post, err := h.svc.ToggleFeature(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.OK(c, toResponse(post, responseOpts{}))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.NoContent(c)
}

func (h *Handler) purgeCache(c *gin.Context) {
	if h.purge != nil {
		h.purge(c.Request.Context())
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPostNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrSlugExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidSlug), errors.Is(err, ErrEmptyTitle), errors.Is(err, ErrCategoryNotFound):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotOwner):
		response.ForbiddenMsg(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
