package storage

import (
	"path/filepath"
	"strings"
)

// localStorageFullpath resolves key under baseDir. Keys that would escape
// baseDir are clamped to it.
func localStorageFullpath(baseDir, key string) string {
	cleaned := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(baseDir, strings.TrimPrefix(cleaned, string(filepath.Separator)))
}
