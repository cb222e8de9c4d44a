package post

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/inkwell-cms/core/internal/database/dbtest"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedActivity struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *recordedActivity) Log(_ context.Context, e activity.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type recordedNotifier struct {
	posts []string
}

func (r *recordedNotifier) PostPublished(_ context.Context, p *models.PostModel) error {
	r.posts = append(r.posts, p.ID)
	return nil
}

var (
	writer = &models.UserModel{Base: models.Base{ID: "writer-1"}, Email: "w@example.com", Role: models.RoleWriter}
	admin  = &models.UserModel{Base: models.Base{ID: "admin-1"}, Email: "a@example.com", Role: models.RoleAdmin}
	fixed  = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *recordedActivity, *recordedNotifier) {
	t.Helper()
	db, mock := dbtest.New(t)
	act := &recordedActivity{}
	notifier := &recordedNotifier{}
	svc := NewService(db, WithActivity(act), WithNotifier(notifier))
	svc.async = func(fn func()) { fn() }
	svc.now = func() time.Time { return fixed }
	return svc, mock, act, notifier
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	svc, mock, act, _ := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts` WHERE slug = \\?").
		WithArgs("hello-world").
		WillReturnRows(dbtest.CountRows(1))

	_, err := svc.Create(context.Background(), writer, &CreatePostDTO{
		Title: "Hello", Slug: "Hello World", Content: "body",
	})
	assert.ErrorIs(t, err, ErrSlugExists)
	assert.Empty(t, act.entries)
}

func TestCreateMapsUniqueIndexViolation(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts`").WillReturnRows(dbtest.CountRows(0))
	mock.ExpectExec("INSERT INTO `posts`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'hello' for key 'idx_posts_slug'"})

	_, err := svc.Create(context.Background(), writer, &CreatePostDTO{Title: "Hello", Slug: "hello", Content: "body"})
	assert.ErrorIs(t, err, ErrSlugExists)
}

func TestCreateRejectsUnknownCategory(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts`").WillReturnRows(dbtest.CountRows(0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `categories` WHERE id = \\?").
		WithArgs("missing").
		WillReturnRows(dbtest.CountRows(0))

	cat := "missing"
	_, err := svc.Create(context.Background(), writer, &CreatePostDTO{
		Title: "Hello", Slug: "hello", Content: "body", CategoryID: &cat,
	})
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestCreateRejectsEmptySlug(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), writer, &CreatePostDTO{Title: "Hello", Slug: "???", Content: "body"})
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestCreateRejectsBlankTitle(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), writer, &CreatePostDTO{Title: " \t ", Slug: "hello", Content: "body"})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	blank := "   "
	_, err = svc.Update(context.Background(), writer, "p1", &UpdatePostDTO{Title: &blank})
	assert.ErrorIs(t, err, ErrEmptyTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePublishedAnnounces(t *testing.T) {
	svc, mock, act, notifier := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts`").WillReturnRows(dbtest.CountRows(0))
	mock.ExpectExec("INSERT INTO `posts`").WillReturnResult(sqlmock.NewResult(1, 1))

	post, err := svc.Create(context.Background(), writer, &CreatePostDTO{
		Title:       "  Launch  ",
		Slug:        "launch",
		Content:     "# Hi",
		Tags:        []string{"Go", "go", " news "},
		IsPublished: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Launch", post.Title)
	assert.Equal(t, "writer-1", post.AuthorID)
	assert.Equal(t, models.StringArray{"go", "news"}, post.Tags)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, fixed, *post.PublishedAt)

	require.Len(t, act.entries, 1)
	assert.Equal(t, models.ActivityPostCreated, act.entries[0].Type)
	assert.Equal(t, "w@example.com", act.entries[0].CreatedBy)
	assert.Equal(t, []string{post.ID}, notifier.posts)
}

func TestCreateDraftDoesNotAnnounce(t *testing.T) {
	svc, mock, _, notifier := newTestService(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts`").WillReturnRows(dbtest.CountRows(0))
	mock.ExpectExec("INSERT INTO `posts`").WillReturnResult(sqlmock.NewResult(1, 1))

	post, err := svc.Create(context.Background(), writer, &CreatePostDTO{Title: "Draft", Slug: "draft", Content: "x"})
	require.NoError(t, err)
	assert.Nil(t, post.PublishedAt)
	assert.Empty(t, notifier.posts)
}

func postRow(id, authorID string, published bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "slug", "content", "author_id", "category_id", "is_published", "is_featured"}).
		AddRow(id, "Title", "title", "body", authorID, nil, published, false)
}

func userRow(u *models.UserModel) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "role"}).AddRow(u.ID, u.Email, u.Role)
}

func TestUpdateRejectsForeignWriter(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE id = \\?").
		WithArgs("p1", 1).
		WillReturnRows(postRow("p1", "someone-else", false))
	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role"}).AddRow("someone-else", "x@example.com", models.RoleWriter))

	title := "Mine now"
	_, err := svc.Update(context.Background(), writer, "p1", &UpdatePostDTO{Title: &title})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateRejectsCollidingSlug(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE id = \\?").
		WillReturnRows(postRow("p1", admin.ID, false))
	mock.ExpectQuery("SELECT \\* FROM `users`").WillReturnRows(userRow(admin))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts` WHERE slug = \\? AND id <> \\?").
		WithArgs("taken", "p1").
		WillReturnRows(dbtest.CountRows(1))

	taken := "taken"
	_, err := svc.Update(context.Background(), admin, "p1", &UpdatePostDTO{Slug: &taken})
	assert.ErrorIs(t, err, ErrSlugExists)
}

func TestPublishingDraftSetsPublishedAtAndAnnounces(t *testing.T) {
	svc, mock, act, notifier := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE id = \\?").
		WillReturnRows(postRow("p1", writer.ID, false))
	mock.ExpectQuery("SELECT \\* FROM `users`").WillReturnRows(userRow(writer))
	mock.ExpectExec("UPDATE `posts` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE id = \\?").
		WillReturnRows(postRow("p1", writer.ID, true))
	mock.ExpectQuery("SELECT \\* FROM `users`").WillReturnRows(userRow(writer))

	yes := true
	post, err := svc.Update(context.Background(), writer, "p1", &UpdatePostDTO{IsPublished: &yes})
	require.NoError(t, err)
	assert.True(t, post.IsPublished)
	assert.Equal(t, []string{"p1"}, notifier.posts)
	require.Len(t, act.entries, 1)
	assert.Equal(t, models.ActivityPostPublished, act.entries[0].Type)
}

func TestDeleteMissingPost(t *testing.T) {
	svc, mock, _, _ := newTestService(t)
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := svc.Delete(context.Background(), admin, "nope")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestRelatedWithoutCategoryIsEmpty(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	posts, err := svc.Related(context.Background(), &models.PostModel{Base: models.Base{ID: "p1"}}, 3)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestTagPatternEscapes(t *testing.T) {
	assert.Equal(t, `%"go"%`, tagPattern(" Go "))
	assert.Equal(t, `%"100\%"%`, tagPattern("100%"))
	assert.Equal(t, `%"a\\"b"%`, tagPattern(`a"b`))
}

func TestTagPatternMatchesStoredTag(t *testing.T) {
	stored, err := models.StringArray{"go", "r&d"}.Value()
	require.NoError(t, err)
	pattern := tagPattern("R&D")
	assert.Equal(t, `%"r&d"%`, pattern)
	assert.Contains(t, stored.(string), strings.Trim(pattern, "%"))
}
