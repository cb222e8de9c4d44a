package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	pkgcron "github.com/inkwell-cms/core/internal/pkg/cron"
	"github.com/inkwell-cms/core/internal/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTasks struct {
	tasks      []*taskqueue.Task
	gotType    string
	gotStatus  taskqueue.TaskStatus
	cleanedFor time.Time
}

func (f *fakeTasks) List(_ context.Context, _, _ int, taskType string, status taskqueue.TaskStatus) ([]*taskqueue.Task, int64, error) {
	f.gotType, f.gotStatus = taskType, status
	return f.tasks, int64(len(f.tasks)), nil
}

func (f *fakeTasks) GetByID(_ context.Context, id string) (*taskqueue.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, taskqueue.ErrTaskNotFound
}

func (f *fakeTasks) DeleteCompleted(_ context.Context, before time.Time) (int, error) {
	f.cleanedFor = before
	return 3, nil
}

func newRouter(t *testing.T, tasks TaskStore, sched Scheduler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/api/admin", func(c *gin.Context) {
		c.Set(middleware.ContextKeyUser, &models.UserModel{Base: models.Base{ID: "a"}, Role: models.RoleAdmin})
		c.Next()
	})
	NewHandler(tasks, sched).RegisterRoutes(admin)
	return r
}

func do(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestTaskRoutes(t *testing.T) {
	store := &fakeTasks{tasks: []*taskqueue.Task{{ID: "t1", Type: "post_newsletter", Status: taskqueue.TaskCompleted}}}
	r := newRouter(t, store, pkgcron.New(time.UTC, nil))

	w := do(r, http.MethodGet, "/api/admin/tasks?type=post_newsletter&status=completed")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "post_newsletter", store.gotType)
	assert.Equal(t, taskqueue.TaskCompleted, store.gotStatus)
	var page struct {
		Data       []taskqueue.Task `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, int64(1), page.Pagination.Total)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/admin/tasks/t1").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/admin/tasks/missing").Code)

	w = do(r, http.MethodDelete, "/api/admin/tasks?before=2026-06-01T00:00:00Z")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":3}`, w.Body.String())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), store.cleanedFor.UTC())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/admin/tasks?before=yesterday").Code)
}

func TestCronRoutes(t *testing.T) {
	sched := pkgcron.New(time.UTC, nil)
	require.NoError(t, sched.Register(pkgcron.Job{Name: "ok", Spec: "@hourly", Fn: func(context.Context) error { return nil }}))
	require.NoError(t, sched.Register(pkgcron.Job{Name: "bad", Spec: "@hourly", Fn: func(context.Context) error { return errors.New("boom") }}))
	r := newRouter(t, &fakeTasks{}, sched)

	w := do(r, http.MethodGet, "/api/admin/cron")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"bad"`)

	w = do(r, http.MethodPost, "/api/admin/cron/bad/run")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"reject"`)
	assert.Contains(t, w.Body.String(), `"message":"boom"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/admin/cron/missing/run").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/admin/cron/missing").Code)
}
