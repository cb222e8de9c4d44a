package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-cms/core/internal/database/dbtest"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRejectsBlankQuery(t *testing.T) {
	db, _ := dbtest.New(t)
	_, _, err := NewService(db).Search(context.Background(), "   ", pagination.Query{Page: 1, Size: 10})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchMatchesPublishedPosts(t *testing.T) {
	db, mock := dbtest.New(t)
	like := "%gorm%"
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts` WHERE posts.is_published = \\?").
		WithArgs(true, like, like, like, like).
		WillReturnRows(dbtest.CountRows(1))
	published := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT \\* FROM `posts` WHERE posts.is_published = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug", "content", "tags", "published_at"}).
			AddRow("p1", "Using GORM", "using-gorm", "Some **gorm** notes", `["go"]`, published))

	results, pag, err := NewService(db).Search(context.Background(), "  GORM ", pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "using-gorm", results[0].Slug)
	assert.Equal(t, []string{"go"}, results[0].Tags)
	assert.Equal(t, "Some gorm notes", results[0].Excerpt)
	assert.Equal(t, int64(1), pag.Total)
}

func TestSearchTagsClauseUsesStoredEncoding(t *testing.T) {
	db, mock := dbtest.New(t)
	like := `%say "hi" & bye%`
	tagLike := `%say \\"hi\\" & bye%`
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `posts` WHERE posts.is_published = \\?").
		WithArgs(true, like, like, like, tagLike).
		WillReturnRows(dbtest.CountRows(0))

	results, _, err := NewService(db).Search(context.Background(), `Say "hi" & bye`, pagination.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchHandlerBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, _ := dbtest.New(t)
	r := gin.New()
	NewHandler(NewService(db)).RegisterRoutes(r.Group("/api"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search?q=", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSnippetCentersOnMatch(t *testing.T) {
	text := "aaaaaaaaaa bbbbbbbbbb cccccccccc needle dddddddddd eeeeeeeeee"
	got := snippet(text, "needle", 20)
	assert.Contains(t, got, "needle")
	assert.True(t, len([]rune(got)) <= 22)
	assert.Equal(t, "short", snippet("short", "x", 20))
}

func TestSnippetNonASCIIBeforeMatch(t *testing.T) {
	// U+023A lowercases to a longer UTF-8 sequence.
	text := strings.Repeat("Ⱥ", 200) + " needle tail"
	got := snippet(text, "NEEDLE", 160)
	assert.Contains(t, got, "needle tail")
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.LessOrEqual(t, len([]rune(got)), 162)
}

func TestRuneIndexFold(t *testing.T) {
	assert.Equal(t, 2, runeIndexFold([]rune("ÄöStraße"), []rune("STRAßE")))
	assert.Equal(t, -1, runeIndexFold([]rune("abc"), []rune("zz")))
	assert.Equal(t, 1, runeIndexFold([]rune("ⱥȺx"), []rune("ⱥX")))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
}
