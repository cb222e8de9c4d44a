package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/inkwell-cms/core/internal/models"
	"github.com/inkwell-cms/core/internal/modules/activity"
	"github.com/inkwell-cms/core/internal/pkg/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	archiveFormat  = "inkwell-bson"
	archiveVersion = 1
	keyPrefix      = "backups/"
	keySuffix      = ".bson.gz"
)

// Tables dumped into every archive, parents before children.
var Tables = []string{
	"users",
	"categories",
	"posts",
	"subscribers",
	"email_notifications",
	"options",
}

var ErrInvalidArchive = errors.New("invalid backup archive")

type ActivityLogger interface {
	Log(ctx context.Context, e activity.Entry)
}

// Result describes one stored archive.
type Result struct {
	Key       string         `json:"key"`
	Size      int            `json:"size"`
	Store     string         `json:"store"`
	Rows      map[string]int `json:"rows"`
	CreatedAt time.Time      `json:"createdAt"`
	Pruned    int            `json:"pruned"`
}

// Service dumps the content tables into gzip'd BSON and keeps the newest
// Keep archives (0 keeps everything).
type Service struct {
	db       *gorm.DB
	store    storage.Store
	keep     int
	activity ActivityLogger
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, store storage.Store, keep int, act ActivityLogger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		store:    store,
		keep:     keep,
		activity: act,
		logger:   logger.Named("BackupService"),
		now:      time.Now,
	}
}

// StoreName reports where archives go.
func (s *Service) StoreName() string { return s.store.Name() }

// Create writes a new archive and prunes old ones.
func (s *Service) Create(ctx context.Context, actor string) (*Result, error) {
	now := s.now().UTC()
	body, rows, err := s.dump(ctx, now)
	if err != nil {
		return nil, err
	}

	key := ArchiveKey(now)
	if _, err := s.store.Put(ctx, key, body, "application/gzip"); err != nil {
		return nil, fmt.Errorf("store backup: %w", err)
	}
	res := &Result{Key: key, Size: len(body), Store: s.store.Name(), Rows: rows, CreatedAt: now}

	pruned, err := s.prune(ctx)
	if err != nil {
		s.logger.Warn("prune backups failed", zap.Error(err))
	}
	res.Pruned = pruned

	s.logger.Info("backup created",
		zap.String("key", key),
		zap.String("store", res.Store),
		zap.Int("bytes", res.Size))
	if s.activity != nil {
		s.activity.Log(ctx, activity.Entry{
			Type:      models.ActivityBackupCreated,
			Title:     "Created backup " + key,
			Metadata:  map[string]interface{}{"key": key, "size": res.Size, "store": res.Store},
			CreatedBy: actor,
		})
	}
	return res, nil
}

// List returns stored archives, newest first.
func (s *Service) List(ctx context.Context) ([]storage.Object, error) {
	objects, err := s.archives(ctx)
	if err != nil {
		return nil, err
	}
	for i := range objects {
		objects[i].URL = ""
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

func (s *Service) archives(ctx context.Context) ([]storage.Object, error) {
	objects, err := s.store.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Object, 0, len(objects))
	for _, o := range objects {
		if strings.HasSuffix(o.Key, keySuffix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Service) prune(ctx context.Context) (int, error) {
	if s.keep <= 0 {
		return 0, nil
	}
	objects, err := s.archives(ctx)
	if err != nil {
		return 0, err
	}
	if len(objects) <= s.keep {
		return 0, nil
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	removed := 0
	for _, o := range objects[:len(objects)-s.keep] {
		if err := s.store.Delete(ctx, o.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// header is the first document of an archive.
type header struct {
	Format    string    `bson:"format"`
	Version   int       `bson:"version"`
	CreatedAt time.Time `bson:"createdAt"`
	Tables    []string  `bson:"tables"`
}

// record is one table row.
type record struct {
	Table string `bson:"table"`
	Row   bson.M `bson:"row"`
}

func (s *Service) dump(ctx context.Context, now time.Time) ([]byte, map[string]int, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)

	if err := writeDoc(zw, header{Format: archiveFormat, Version: archiveVersion, CreatedAt: now, Tables: Tables}); err != nil {
		return nil, nil, err
	}
	counts := make(map[string]int, len(Tables))
	for _, table := range Tables {
		var rows []map[string]interface{}
		if err := s.db.WithContext(ctx).Table(table).Find(&rows).Error; err != nil {
			return nil, nil, fmt.Errorf("dump %s: %w", table, err)
		}
		for _, row := range rows {
			doc := make(bson.M, len(row))
			for k, v := range row {
				doc[k] = normalizeValue(v)
			}
			if err := writeDoc(zw, record{Table: table, Row: doc}); err != nil {
				return nil, nil, fmt.Errorf("encode %s: %w", table, err)
			}
		}
		counts[table] = len(rows)
	}
	if err := zw.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), counts, nil
}

func writeDoc(w io.Writer, v interface{}) error {
	b, err := bson.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Archive is a decoded backup.
type Archive struct {
	CreatedAt time.Time
	Tables    []string
	Rows      map[string][]bson.M
}

// Decode reads an archive produced by Create.
func Decode(r io.Reader) (*Archive, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer zr.Close()

	raw, err := bson.NewFromIOReader(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	var h header
	if err := bson.Unmarshal(raw, &h); err != nil || h.Format != archiveFormat {
		return nil, fmt.Errorf("%w: bad header", ErrInvalidArchive)
	}

	out := &Archive{CreatedAt: h.CreatedAt, Tables: h.Tables, Rows: map[string][]bson.M{}}
	for {
		raw, err := bson.NewFromIOReader(zr)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		var rec record
		if err := bson.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		out.Rows[rec.Table] = append(out.Rows[rec.Table], rec.Row)
	}
}

// ArchiveKey names the archive taken at t.
func ArchiveKey(t time.Time) string {
	return keyPrefix + "inkwell-" + t.UTC().Format("20060102-150405") + keySuffix
}
