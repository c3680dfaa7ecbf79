package api

import (
	"fmt"
	"path"
	"strings"
)

const (
	KindImage = "image"
	KindPDF   = "pdf"
)

const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

// MaxAttachmentNameLength matches the max on Attachment.Name, in characters.
const MaxAttachmentNameLength = 255

const maxKeptExtension = 16

var allowedMediaTypes = map[string]string{
	"image/jpeg":      KindImage,
	"image/png":       KindImage,
	"image/gif":       KindImage,
	"image/webp":      KindImage,
	"application/pdf": KindPDF,
}

// KindForMediaType reports which attachment kind a media type maps to, if it
// is on the upload allow-list. Parameters such as "; charset=" are ignored.
func KindForMediaType(mediaType string) (string, bool) {
	base, _, _ := strings.Cut(mediaType, ";")
	kind, ok := allowedMediaTypes[strings.ToLower(strings.TrimSpace(base))]
	return kind, ok
}

type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string {
	return e.Reason
}

// CheckUpload applies the allow-list and size cap shared by the server and the
// client library.
func CheckUpload(mediaType string, size, maxBytes int64) (string, error) {
	kind, ok := KindForMediaType(mediaType)
	if !ok {
		return "", &UploadError{Reason: fmt.Sprintf("Unsupported file type: %s. Allowed: images (JPEG, PNG, GIF, WebP) and PDFs", mediaType)}
	}
	if size > maxBytes {
		return "", &UploadError{Reason: fmt.Sprintf("File too large. Maximum size is %dMB", maxBytes/(1024*1024))}
	}
	return kind, nil
}

// ClampFileName shortens name to MaxAttachmentNameLength characters. The
// extension is kept unless it is unusually long itself.
func ClampFileName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxAttachmentNameLength {
		return name
	}

	ext := []rune(path.Ext(name))
	if len(ext) > maxKeptExtension {
		ext = nil
	}
	stem := runes[:len(runes)-len(ext)]
	return string(stem[:MaxAttachmentNameLength-len(ext)]) + string(ext)
}
