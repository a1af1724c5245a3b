// Package storage uploads post media and returns the URL clients embed in
// posts. S3Store is used in production, MemoryStore in tests and local runs.
package storage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/zfogg/sparkfeed/internal/feed"
)

// BlobStore uploads bytes under path and returns the public URL
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

var (
	_ BlobStore      = (*S3Store)(nil)
	_ BlobStore      = (*MemoryStore)(nil)
	_ feed.BlobStore = BlobStore(nil)
)

// MaxUploadBytes caps a single media upload
const MaxUploadBytes = 25 << 20

// ContentType returns the MIME type for a media file extension
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// Allowed reports whether path has a media extension the feed accepts
func Allowed(path string) bool {
	return ContentType(path) != "application/octet-stream"
}

func publicURL(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
