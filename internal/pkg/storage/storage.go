package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured = errors.New("storage: object storage not configured")
	ErrInvalidKey    = errors.New("storage: invalid object key")
)

// Object describes a stored object.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	URL          string    `json:"url,omitempty"`
}

// Store is an object store keyed by slash separated paths.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// CoverKey builds covers/YYYY/MM/<uuid>.<ext>.
func CoverKey(now time.Time, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("covers/%04d/%02d/%s.%s", now.Year(), int(now.Month()), uuid.New().String(), ext)
}

// NormalizeKey cleans a key and rejects traversal.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}
