// Package media stores uploaded menu images on the local filesystem.
package media

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files that are not images.
var ErrUnsupportedType = errors.New("unsupported image type")

var extensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Store keeps assets under a directory and serves them below a base URL.
type Store struct {
	dir     string
	baseURL string
}

// New creates the directory if needed and returns a Store.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put writes r under a fresh key that keeps the extension of name.
func (s *Store) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := extensions[ext]; !ok {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("rename %q: %w", key, err)
	}
	return key, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// URL returns the public location of key.
func (s *Store) URL(key string) string {
	return s.baseURL + "/" + path.Clean(key)
}

// Handler serves stored assets. Mount it with http.StripPrefix.
func (s *Store) Handler() http.Handler {
	return http.FileServerFS(os.DirFS(s.dir))
}

func (s *Store) path(key string) (string, error) {
	if !fs.ValidPath(key) || strings.Contains(key, "/") {
		return "", errors.Errorf("invalid media key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
