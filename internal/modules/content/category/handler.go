package category

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

type Handler struct {
	svc   *Service
	purge func(ctx context.Context)
}

func NewHandler(svc *Service, purge func(ctx context.Context)) *Handler {
	return &Handler{svc: svc, purge: purge}
}

func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup) {
	cats := public.Group("/categories")
	cats.GET("", h.list)
	cats.GET("/:slug", h.getBySlug)

	ac := admin.Group("/categories", middleware.RequireRole(models.RoleWriter))
	ac.GET("", h.list)
	ac.GET("/:id", h.getByID)

	writes := ac.Group("", middleware.RequireRole(models.RoleAdmin))
	writes.POST("", h.create)
	writes.PUT("/:id", h.update)
	writes.PATCH("/:id", h.update)
	writes.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	cats, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cats)
}

func (h *Handler) getBySlug(c *gin.Context) {
	cat, err := h.svc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cat)
}

func (h *Handler) getByID(c *gin.Context) {
	cat, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cat)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCategoryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cat, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.Created(c, cat)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateCategoryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cat, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), c.Param("id"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purgeCache(c)
	response.OK(c, cat)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
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
	case errors.Is(err, ErrCategoryNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrCategoryExists), errors.Is(err, ErrCategoryInUse):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidSlug):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
