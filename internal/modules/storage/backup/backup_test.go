package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/inkwell-cms/core/internal/database/dbtest"
	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivity struct{ types []string }

func (f *fakeActivity) Log(_ context.Context, e activity.Entry) { f.types = append(f.types, e.Type) }

func expectDump(mock sqlmock.Sqlmock) {
	for _, table := range Tables {
		rows := sqlmock.NewRows([]string{"id", "name"})
		switch table {
		case "posts":
			rows = sqlmock.NewRows([]string{"id", "title", "view_count"}).
				AddRow("p1", []byte("Hello"), int64(3)).
				AddRow("p2", "Second", int64(0))
		case "subscribers":
			rows = sqlmock.NewRows([]string{"id", "email"}).AddRow("s1", "reader@example.com")
		}
		mock.ExpectQuery("SELECT \\* FROM `" + table + "`").WillReturnRows(rows)
	}
}

func TestCreateWritesDecodableArchive(t *testing.T) {
	db, mock := dbtest.New(t)
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	act := &fakeActivity{}
	svc := NewService(db, store, 0, act, nil)
	at := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	expectDump(mock)
	res, err := svc.Create(context.Background(), "scheduler")
	require.NoError(t, err)
	assert.Equal(t, "backups/inkwell-20260601-030000.bson.gz", res.Key)
	assert.Equal(t, "local", res.Store)
	assert.Equal(t, 2, res.Rows["posts"])
	assert.Equal(t, 1, res.Rows["subscribers"])
	assert.Equal(t, []string{models.ActivityBackupCreated}, act.types)

	data, err := os.ReadFile(filepath.Join(dir, "backups", "inkwell-20260601-030000.bson.gz"))
	require.NoError(t, err)
	archive, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Tables, archive.Tables)
	assert.True(t, at.Equal(archive.CreatedAt))
	require.Len(t, archive.Rows["posts"], 2)
	assert.Equal(t, "Hello", archive.Rows["posts"][0]["title"])
	assert.Equal(t, int64(3), archive.Rows["posts"][0]["view_count"])
	assert.Equal(t, "reader@example.com", archive.Rows["subscribers"][0]["email"])
}

func TestCreatePrunesOldArchives(t *testing.T) {
	db, mock := dbtest.New(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	for _, day := range []int{1, 2, 3} {
		_, err := store.Put(ctx, ArchiveKey(time.Date(2026, 5, day, 0, 0, 0, 0, time.UTC)), []byte("old"), "")
		require.NoError(t, err)
	}
	_, err = store.Put(ctx, "backups/notes.txt", []byte("keep me"), "")
	require.NoError(t, err)

	svc := NewService(db, store, 2, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	expectDump(mock)
	res, err := svc.Create(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pruned)

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "backups/inkwell-20260601-000000.bson.gz", listed[0].Key)
	assert.Equal(t, "backups/inkwell-20260503-000000.bson.gz", listed[1].Key)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not gzip")))
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

type linkingStore struct{ *storage.LocalStore }

func (s linkingStore) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	objects, err := s.LocalStore.List(ctx, prefix)
	for i := range objects {
		objects[i].URL = "https://cdn.example.com/" + objects[i].Key
	}
	return objects, err
}

func TestListNeverExposesArchiveURLs(t *testing.T) {
	db, mock := dbtest.New(t)
	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := NewService(db, linkingStore{local}, 0, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	expectDump(mock)
	_, err = svc.Create(context.Background(), "admin@example.com")
	require.NoError(t, err)

	listed, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].URL)
}
