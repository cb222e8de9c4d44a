package notification

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

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	g := admin.Group("/notifications", middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.POST("", h.create)
	g.POST("/send", h.send)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rows, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c), lq)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, pag)
}

func (h *Handler) get(c *gin.Context) {
	n, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, n)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	n, err := h.svc.Create(c.Request.Context(), middleware.Actor(c), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, n)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	n, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, n)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// send POST /notifications/send delivers a stored campaign by id, or an
// inline one built from the body.
func (h *Handler) send(c *gin.Context) {
	var dto SendDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var (
		n   *models.EmailNotificationModel
		err error
	)
	if dto.ID != "" {
		n, err = h.svc.Send(c.Request.Context(), middleware.Actor(c), dto.ID)
	} else {
		n, err = h.svc.SendInline(c.Request.Context(), middleware.Actor(c), &dto)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, n)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrNotEditable), errors.Is(err, ErrNotSendable), errors.Is(err, ErrStillSending):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrEmptyRecipientList), errors.Is(err, ErrScheduleInPast),
		errors.Is(err, ErrInvalidRecipientType), errors.Is(err, ErrInlineIncomplete):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
