package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore keeps objects on disk and serves them itself under
// FilesRoute. Used for development and tests.
type LocalObjectStore struct {
	baseDir       string
	publicBaseURL string
}

const FilesRoute = "/files/"

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir, publicBaseURL string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir, publicBaseURL: strings.TrimSuffix(publicBaseURL, "/")}, nil
}

func (s *LocalObjectStore) CreateBucket(ctx context.Context) error {
	if err := os.MkdirAll(s.baseDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.baseDir, err)
	}
	return nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key string, data io.Reader, contentType string) error {
	path := localStorageFullpath(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", s.baseDir, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", s.baseDir, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", s.baseDir, key, err)
	}

	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(localStorageFullpath(s.baseDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", s.baseDir, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file %s/%s: %w", s.baseDir, key, err)
	}
	return file, nil
}

func (s *LocalObjectStore) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Name: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in %s with prefix %s: %w", s.baseDir, prefix, err)
	}
	return objects, nil
}

func (s *LocalObjectStore) DeleteObjects(ctx context.Context, prefix string) error {
	objects, err := s.ListObjects(ctx, prefix)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if err := os.Remove(localStorageFullpath(s.baseDir, obj.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete object %s/%s: %w", s.baseDir, obj.Name, err)
		}
	}

	// Clean up the directory for prefixes that name one.
	if strings.HasSuffix(prefix, "/") {
		dir := localStorageFullpath(s.baseDir, prefix)
		if dir != s.baseDir {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to delete directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

func (s *LocalObjectStore) PublicURL(key string) string {
	return s.publicBaseURL + FilesRoute + escapeKey(key)
}

// Handler serves stored objects. Mount it at FilesRoute.
func (s *LocalObjectStore) Handler() http.Handler {
	return http.StripPrefix(FilesRoute, http.FileServer(http.Dir(s.baseDir)))
}
