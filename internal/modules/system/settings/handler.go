package settings

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
	g := admin.Group("/settings", middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.get)
	g.PUT("", h.update)
	g.PATCH("", h.update)
}

func (h *Handler) get(c *gin.Context) {
	cfg, err := h.svc.Get(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cfg, err := h.svc.Update(c.Request.Context(), middleware.Actor(c), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}
