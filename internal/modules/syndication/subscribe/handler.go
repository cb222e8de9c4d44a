package subscribe

import (
	"encoding/csv"
	"errors"
	"net/http"
	"time"

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

// RegisterRoutes mounts the public subscribe endpoints and the admin list.
// limit guards the public writes.
func (h *Handler) RegisterRoutes(public, admin *gin.RouterGroup, limit gin.HandlerFunc) {
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}
	public.POST("/subscribe", limit, h.subscribe)
	public.POST("/unsubscribe", limit, h.unsubscribe)
	public.GET("/unsubscribe", h.unsubscribeByToken)

	g := admin.Group("/subscribers", middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.GET("/stats", h.stats)
	g.GET("/export", h.export)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) subscribe(c *gin.Context) {
	var dto SubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "a valid email is required")
		return
	}
	sub, reactivated, err := h.svc.Subscribe(c.Request.Context(), dto.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{"email": sub.Email, "subscribedAt": sub.SubscribedAt, "reactivated": reactivated}
	if reactivated {
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var dto UnsubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "a valid email is required")
		return
	}
	sub, err := h.svc.UnsubscribeByEmail(c.Request.Context(), dto.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"email": sub.Email, "isActive": sub.IsActive})
}

// unsubscribeByToken GET /unsubscribe?token= (the link in every newsletter)
func (h *Handler) unsubscribeByToken(c *gin.Context) {
	sub, err := h.svc.UnsubscribeByToken(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"email": sub.Email, "isActive": sub.IsActive})
}

func (h *Handler) list(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	subs, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c), lq)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, subs, pag)
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, st)
}

// export GET /subscribers/export streams the filtered list as CSV.
func (h *Handler) export(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	subs, err := h.svc.All(c.Request.Context(), lq)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	filename := "subscribers-" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"email", "status", "subscribed_at", "unsubscribed_at"})
	for _, s := range subs {
		status := "inactive"
		if s.IsActive {
			status = "active"
		}
		left := ""
		if s.UnsubscribedAt != nil {
			left = s.UnsubscribedAt.UTC().Format(time.RFC3339)
		}
		_ = w.Write([]string{s.Email, status, s.SubscribedAt.UTC().Format(time.RFC3339), left})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAlreadySubscribed):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrSubscriberNotFound):
		response.NotFoundMsg(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
