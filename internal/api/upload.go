package api

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"docchat-backend/internal/storage"
	"docchat-backend/pkg/api"

	"github.com/google/uuid"
)

const (
	uploadFormField = "file"
	// Room for the multipart envelope around the file.
	multipartOverhead = 1 << 20
)

func uploadRejected(kind string, err error) error {
	uploadsTotal.WithLabelValues("rejected", kind).Inc()
	return err
}

// Upload stores a single multipart file and returns the attachment reference
// clients send along with chat requests.
func (s *BackendService) Upload(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, uploadRejected("", CodedErrorf(http.StatusBadRequest, "File too large. Maximum size is %dMB", s.maxUploadBytes/(1024*1024)))
		}
		return nil, uploadRejected("", CodedErrorf(http.StatusBadRequest, "unable to parse upload: expected a multipart form with a '%s' file field", uploadFormField))
	}
	defer file.Close()

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}

	kind, err := api.CheckUpload(mediaType, header.Size, s.maxUploadBytes)
	if err != nil {
		return nil, uploadRejected(kind, CodedError(http.StatusBadRequest, err))
	}

	name := api.ClampFileName(filepath.Base(header.Filename))
	id := uuid.New()
	key := storage.UploadKey(id, name)

	if err := s.store.PutObject(r.Context(), key, file, mediaType); err != nil {
		slog.Error("error storing upload", "key", key, "error", err)
		uploadsTotal.WithLabelValues("error", kind).Inc()
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store file")
	}

	uploadsTotal.WithLabelValues("ok", kind).Inc()
	uploadBytes.Observe(float64(header.Size))
	slog.Info("stored upload", "id", id, "key", key, "size", header.Size, "kind", kind)

	return api.UploadResponse{
		Id:       id,
		Name:     name,
		Type:     kind,
		Url:      s.store.PublicURL(key),
		MimeType: mediaType,
	}, nil
}
