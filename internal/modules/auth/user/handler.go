package user

import (
	"errors"

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

// RegisterRoutes mounts /me on an authenticated group and the user admin
// endpoints under admin.
func (h *Handler) RegisterRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/me", h.me)

	g := admin.Group("/users", middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.PATCH("/:id/role", h.updateRole)
}

func (h *Handler) me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		response.Unauthorized(c)
		return
	}
	response.OK(c, u)
}

func (h *Handler) list(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	users, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c), lq)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, users, pag)
}

func (h *Handler) updateRole(c *gin.Context) {
	var dto UpdateRoleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.UpdateRole(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), dto.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			response.NotFoundMsg(c, err.Error())
		case errors.Is(err, ErrInvalidRole):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrSelfDemotion):
			response.ForbiddenMsg(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, u)
}
