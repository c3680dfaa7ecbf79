package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"docchat-backend/internal/llm"
	"docchat-backend/internal/storage"
	"docchat-backend/pkg/api"

	"golang.org/x/sync/errgroup"
)

const maxParallelFileLoads = 4

// loadParts builds the parts of the new user message: its text followed by
// each attachment in order. Attachments that cannot be read from storage are
// replaced by a text placeholder.
func (s *Service) loadParts(ctx context.Context, content string, attachments []api.Attachment) []llm.Part {
	files := make([]*llm.File, len(attachments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFileLoads)
	for i, attachment := range attachments {
		g.Go(func() error {
			data, err := s.readObject(gctx, storage.UploadKey(attachment.Id, attachment.Name))
			if err != nil {
				slog.Warn("failed to load attachment", "attachment_id", attachment.Id, "name", attachment.Name, "error", err)
				attachmentLoadFailuresTotal.WithLabelValues(attachment.Type).Inc()
				return nil
			}
			files[i] = &llm.File{Name: attachment.Name, Kind: attachment.Type, MimeType: attachment.MimeType, Data: data}
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]llm.Part, 0, len(attachments)+1)
	if content != "" {
		parts = append(parts, llm.TextPart(content))
	}
	for i, attachment := range attachments {
		if files[i] == nil {
			parts = append(parts, llm.FailedFilePart(attachment.Type, attachment.Name))
			continue
		}
		parts = append(parts, llm.FilePart(*files[i]))
	}
	return parts
}

func (s *Service) readObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.store.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading object %s: %w", key, err)
	}
	if int64(len(data)) > s.maxFileBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", key, s.maxFileBytes)
	}
	return data, nil
}
