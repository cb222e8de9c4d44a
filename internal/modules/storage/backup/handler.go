package backup

import (
	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	g := admin.Group("/backups", middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.POST("", h.create)
}

func (h *Handler) list(c *gin.Context) {
	objects, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"store": h.svc.StoreName(), "data": objects})
}

func (h *Handler) create(c *gin.Context) {
	res, err := h.svc.Create(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, res)
}
