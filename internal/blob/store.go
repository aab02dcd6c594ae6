// Package blob stores uploaded project documents and hands out public URLs
// for them.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"heatline/internal/config"
)

// Store is the document storage used by the implementation phase.
type Store interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) error
	PublicURL(objectPath string) string
}

// FileStore keeps objects under a local directory.
type FileStore struct {
	Dir string
	// BaseURL, when set, is the HTTP prefix the directory is served under.
	BaseURL string
}

func NewFileStore(dir, baseURL string) *FileStore {
	return &FileStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *FileStore) Upload(ctx context.Context, objectPath string, r io.Reader, _ string) error {
	target, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store blob: %w", err)
	}
	return nil
}

func (s *FileStore) PublicURL(objectPath string) string {
	clean := cleanPath(objectPath)
	if s.BaseURL != "" {
		return s.BaseURL + "/" + escapePath(clean)
	}
	abs, err := filepath.Abs(filepath.Join(s.Dir, filepath.FromSlash(clean)))
	if err != nil {
		abs = filepath.Join(s.Dir, filepath.FromSlash(clean))
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func (s *FileStore) resolve(objectPath string) (string, error) {
	clean := cleanPath(objectPath)
	if clean == "" || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.Dir, filepath.FromSlash(clean)), nil
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// New builds the store selected by the blobs section of the config. The file
// backend defaults to <workspace>/.heatline/blobs.
func New(ctx context.Context, cfg config.Blobs, workspace string) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			if workspace == "" {
				workspace = "."
			}
			dir = filepath.Join(workspace, ".heatline", "blobs")
		}
		return NewFileStore(dir, cfg.PublicBaseURL), nil
	case "s3":
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			Prefix:        cfg.Prefix,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Backend)
	}
}
