package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/inkwell-cms/core/internal/database/dbtest"
	"github.com/inkwell-cms/core/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogInserts(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO `activity_logs`").WillReturnResult(sqlmock.NewResult(1, 1))

	NewService(db, nil).Log(context.Background(), Entry{Type: "post_created", Title: "Hello"})
}

func TestLogSwallowsErrors(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO `activity_logs`").WillReturnError(errors.New("disk full"))

	core, logs := observer.New(zap.WarnLevel)
	NewService(db, zap.New(core)).Log(context.Background(), Entry{Type: "post_created"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "write activity log failed", logs.All()[0].Message)
}

func TestLogSurvivesCancelledRequest(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectExec("INSERT INTO `activity_logs`").WillReturnResult(sqlmock.NewResult(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewService(db, nil).Log(ctx, Entry{Type: "subscriber_joined"})
}

func TestListFiltersByType(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `activity_logs` WHERE type = \\?").
		WithArgs("post_created").
		WillReturnRows(dbtest.CountRows(1))
	mock.ExpectQuery("SELECT \\* FROM `activity_logs` WHERE type = \\? ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "title", "created_at"}).
			AddRow("a1", "post_created", "Hello", time.Now()))

	rows, pag, err := NewService(db, nil).List(context.Background(), pagination.Query{Page: 1, Size: 10}, "post_created")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Hello", rows[0].Title)
	assert.Equal(t, int64(1), pag.Total)
	assert.False(t, pag.HasNextPage)
}

func TestRecentClampsLimit(t *testing.T) {
	db, mock := dbtest.New(t)
	mock.ExpectQuery("SELECT \\* FROM `activity_logs` ORDER BY created_at DESC LIMIT \\?").
		WithArgs(maxRecentLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := NewService(db, nil).Recent(context.Background(), 500)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
