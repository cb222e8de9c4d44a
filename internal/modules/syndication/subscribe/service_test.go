package subscribe

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/database/dbtest"
	"github.com/inkwell-cms/core/internal/middleware"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivity struct{ types []string }

func (f *fakeActivity) Log(_ context.Context, e activity.Entry) {
	f.types = append(f.types, e.Type)
}

type fakeNotifier struct{ emails []string }

func (f *fakeNotifier) SubscriberJoined(_ context.Context, email string) error {
	f.emails = append(f.emails, email)
	return nil
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeActivity, *fakeNotifier) {
	t.Helper()
	db, mock := dbtest.New(t)
	act, notifier := &fakeActivity{}, &fakeNotifier{}
	svc := NewService(db, act, notifier, nil)
	svc.now = func() time.Time { return now }
	svc.async = func(fn func()) { fn() }
	return svc, mock, act, notifier
}

func subscriberRow(id, email string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "is_active", "subscribed_at", "token"}).
		AddRow(id, email, active, now.Add(-48*time.Hour), "tok-"+id)
}

func TestSubscribeNewEmail(t *testing.T) {
	svc, mock, act, notifier := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WithArgs("reader@example.com", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `subscribers`").WillReturnResult(sqlmock.NewResult(1, 1))

	sub, reactivated, err := svc.Subscribe(context.Background(), "  Reader@Example.com ")
	require.NoError(t, err)
	assert.False(t, reactivated)
	assert.Equal(t, "reader@example.com", sub.Email)
	assert.True(t, sub.IsActive)
	assert.Len(t, sub.Token, 48)
	assert.Equal(t, []string{models.ActivitySubscriberJoined}, act.types)
	assert.Equal(t, []string{"reader@example.com"}, notifier.emails)
}

func TestSubscribeActiveEmailRejected(t *testing.T) {
	svc, mock, act, notifier := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WillReturnRows(subscriberRow("s1", "reader@example.com", true))

	_, _, err := svc.Subscribe(context.Background(), "reader@example.com")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	assert.Empty(t, act.types)
	assert.Empty(t, notifier.emails)
}

func TestSubscribeInactiveEmailReactivates(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WillReturnRows(subscriberRow("s1", "reader@example.com", false))
	mock.ExpectExec("UPDATE `subscribers` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub, reactivated, err := svc.Subscribe(context.Background(), "reader@example.com")
	require.NoError(t, err)
	assert.True(t, reactivated)
	assert.True(t, sub.IsActive)
	assert.Equal(t, now, sub.SubscribedAt)
	assert.Nil(t, sub.UnsubscribedAt)
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE token = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.UnsubscribeByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)

	_, err = svc.UnsubscribeByToken(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestUnsubscribeMarksInactive(t *testing.T) {
	svc, mock, act, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WillReturnRows(subscriberRow("s1", "reader@example.com", true))
	mock.ExpectExec("UPDATE `subscribers` SET").WillReturnResult(sqlmock.NewResult(0, 1))

	sub, err := svc.UnsubscribeByEmail(context.Background(), "reader@example.com")
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
	require.NotNil(t, sub.UnsubscribedAt)
	assert.Equal(t, []string{models.ActivitySubscriberLeft}, act.types)
}

func TestStats(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `subscribers`$").WillReturnRows(dbtest.CountRows(10))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `subscribers` WHERE is_active = \\?$").WillReturnRows(dbtest.CountRows(7))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `subscribers` WHERE is_active = \\? AND subscribed_at >= \\?").
		WithArgs(true, now.Add(-recentWindow)).
		WillReturnRows(dbtest.CountRows(2))

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 10, Active: 7, Inactive: 3, Recent: 2}, st)
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	admin := r.Group("/api/admin", func(c *gin.Context) {
		c.Set(middleware.ContextKeyUser, &models.UserModel{Base: models.Base{ID: "a"}, Role: models.RoleAdmin})
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api"), admin, nil)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSubscribeTwiceOverHTTP(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	r := newTestRouter(svc)

	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `subscribers`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM `subscribers` WHERE email = \\?").
		WillReturnRows(subscriberRow("s1", "reader@example.com", true))

	assert.Equal(t, http.StatusCreated, postJSON(r, "/api/subscribe", `{"email":"reader@example.com"}`).Code)

	w := postJSON(r, "/api/subscribe", `{"email":"reader@example.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already subscribed")
}

func TestSubscribeRejectsInvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/api/subscribe", `{"email":"not-an-email"}`).Code)
}

func TestExportCSV(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	r := newTestRouter(svc)
	left := now.Add(-time.Hour)
	mock.ExpectQuery("SELECT \\* FROM `subscribers` ORDER BY subscribed_at ASC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "is_active", "subscribed_at", "unsubscribed_at"}).
			AddRow("s1", "a@example.com", true, now, nil).
			AddRow("s2", "b@example.com", false, now, left))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/subscribers/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "subscribers-")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"email", "status", "subscribed_at", "unsubscribed_at"}, records[0])
	assert.Equal(t, []string{"a@example.com", "active", now.Format(time.RFC3339), ""}, records[1])
	assert.Equal(t, "inactive", records[2][1])
	assert.Equal(t, left.Format(time.RFC3339), records[2][3])
}
