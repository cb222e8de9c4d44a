package activity

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the audit log under an authenticated admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	g := admin.Group("/activity", middleware.RequireRole(models.RoleWriter))
	g.GET("", h.list)
	g.GET("/recent", h.recent)
}

func (h *Handler) list(c *gin.Context) {
	rows, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c), c.Query("type"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, pag)
}

func (h *Handler) recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	rows, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, rows)
}
