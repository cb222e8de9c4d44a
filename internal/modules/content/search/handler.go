package search

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(public *gin.RouterGroup) {
	public.GET("/search", h.search)
}

// search GET /search?q=
func (h *Handler) search(c *gin.Context) {
	results, pag, err := h.svc.Search(c.Request.Context(), c.Query("q"), pagination.FromContext(c))
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Paged(c, results, pag)
}
