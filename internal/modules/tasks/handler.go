// Package tasks exposes dispatch task records and scheduler jobs to admins.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	pkgcron "github.com/inkwell-cms/core/internal/pkg/cron"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/inkwell-cms/core/internal/pkg/response"
	"github.com/inkwell-cms/core/internal/pkg/taskqueue"
)

// TaskStore reads task records. *taskqueue.Service satisfies it.
type TaskStore interface {
	List(ctx context.Context, page, size int, taskType string, status taskqueue.TaskStatus) ([]*taskqueue.Task, int64, error)
	GetByID(ctx context.Context, id string) (*taskqueue.Task, error)
	DeleteCompleted(ctx context.Context, before time.Time) (int, error)
}

// Scheduler is the cron surface. *cron.Scheduler satisfies it.
type Scheduler interface {
	List() []pkgcron.ListItem
	Get(name string) (pkgcron.ListItem, error)
	RunSync(ctx context.Context, name string) (pkgcron.ListItem, error)
}

type Handler struct {
	tasks TaskStore
	sched Scheduler
}

func NewHandler(tasks TaskStore, sched Scheduler) *Handler {
	return &Handler{tasks: tasks, sched: sched}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	t := admin.Group("/tasks", middleware.RequireRole(models.RoleAdmin))
	t.GET("", h.listTasks)
	t.GET("/:id", h.getTask)
	t.DELETE("", h.cleanup)

	c := admin.Group("/cron", middleware.RequireRole(models.RoleAdmin))
	c.GET("", h.listJobs)
	c.GET("/:name", h.getJob)
	c.POST("/:name/run", h.runJob)
}

// GET /tasks?type=&status=
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)
	status := taskqueue.TaskStatus(c.Query("status"))
	tasks, total, err := h.tasks.List(c.Request.Context(), q.Page, q.Size, c.Query("type"), status)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	totalPages := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPages,
		Size:        q.Size,
		HasNextPage: q.Page < totalPages,
	})
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		response.NotFoundMsg(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, task)
}

// DELETE /tasks?before=<RFC3339> removes finished tasks, default older than a day.
func (h *Handler) cleanup(c *gin.Context) {
	before := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "before must be an RFC3339 timestamp")
			return
		}
		before = t
	}
	removed, err := h.tasks.DeleteCompleted(c.Request.Context(), before)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

func (h *Handler) listJobs(c *gin.Context) {
	response.OK(c, h.sched.List())
}

func (h *Handler) getJob(c *gin.Context) {
	item, err := h.sched.Get(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, "cron job not found")
		return
	}
	response.OK(c, item)
}

// POST /cron/:name/run runs the job and reports its outcome.
func (h *Handler) runJob(c *gin.Context) {
	item, err := h.sched.RunSync(c.Request.Context(), c.Param("name"))
	if errors.Is(err, pkgcron.ErrJobNotFound) {
		response.NotFoundMsg(c, "cron job not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, item)
}
