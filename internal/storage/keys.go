package storage

import (
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const uploadsPrefix = "uploads"

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\w\-]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// SanitizeFilename makes a user supplied filename safe to use as the last
// segment of an object key. The extension is kept as is.
func SanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))

	name, ext := filename, ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		name, ext = filename[:idx], cleanSegment(filename[idx+1:])
	}

	name = cleanSegment(name)
	if name == "" {
		name = "file"
	}

	if ext != "" {
		return name + "." + ext
	}
	return name
}

func cleanSegment(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(s, "_")
	s = repeatedUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func UploadPrefix(id uuid.UUID) string {
	return path.Join(uploadsPrefix, id.String()) + "/"
}

// UploadKey is where an uploaded file with the given id and name is stored.
func UploadKey(id uuid.UUID, filename string) string {
	return UploadPrefix(id) + SanitizeFilename(filename)
}

// PrefixOfKey returns the upload prefix that owns key, or the key itself when
// it is not an upload key.
func PrefixOfKey(key string) string {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) == 3 && parts[0] == uploadsPrefix {
		return parts[0] + "/" + parts[1] + "/"
	}
	return key
}
