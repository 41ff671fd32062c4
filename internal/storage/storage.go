// Package storage keeps uploaded photos in a private bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadPrefix is the folder every customer photo is written under
const UploadPrefix = "uploads"

// SignedURLTTL is how long a photo link handed to the shop stays valid
const SignedURLTTL = 24 * time.Hour

// ErrNotFound is returned when the object does not exist
var ErrNotFound = errors.New("object not found")

// ObjectStore is a private bucket of uploaded photos
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error
	CreateSignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

// ObjectPath builds uploads/<unix-ms>-<uuid>.<ext> from the client filename.
// Missing or odd extensions become jpg.
func ObjectPath(filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s.%s", UploadPrefix, now.UnixMilli(), uuid.NewString(), extension(filename))
}

func extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" || len(ext) > 5 {
		return "jpg"
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}
