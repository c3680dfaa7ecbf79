package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat-backend/internal/database"
	"docchat-backend/internal/llm"
	"docchat-backend/internal/storage"
	"docchat-backend/internal/utils"
	"docchat-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Emit delivers one event to the client. An error means the client is gone.
type Emit func(api.Event) error

type Service struct {
	db           *gorm.DB
	store        storage.ObjectStore
	provider     llm.Provider
	locks        *utils.MutexMap[uuid.UUID]
	maxFileBytes int64
}

func NewService(db *gorm.DB, store storage.ObjectStore, provider llm.Provider, maxActiveConversations int, maxFileBytes int64) *Service {
	return &Service{
		db:           db,
		store:        store,
		provider:     provider,
		locks:        utils.NewMutexMap[uuid.UUID](maxActiveConversations),
		maxFileBytes: maxFileBytes,
	}
}

type emitError struct {
	err error
}

func (e *emitError) Error() string {
	return "failed to send event: " + e.err.Error()
}

func (e *emitError) Unwrap() error {
	return e.err
}

// IsDisconnect reports whether a Turn failed because the client went away,
// in which case there is no one to report the error to.
func IsDisconnect(err error) bool {
	var ee *emitError
	return errors.As(err, &ee) || errors.Is(err, context.Canceled)
}

func send(emit Emit, eventType string, data any) error {
	event, err := api.NewEvent(eventType, data)
	if err != nil {
		return err
	}
	if err := emit(event); err != nil {
		return &emitError{err: err}
	}
	return nil
}

func toDatabaseAttachments(attachments []api.Attachment) []database.Attachment {
	out := make([]database.Attachment, 0, len(attachments))
	for _, attachment := range attachments {
		out = append(out, database.Attachment{
			Id:         attachment.Id,
			Name:       attachment.Name,
			Kind:       attachment.Type,
			Url:        attachment.Url,
			StorageKey: storage.UploadKey(attachment.Id, attachment.Name),
			MimeType:   attachment.MimeType,
		})
	}
	return out
}

// toHistory converts stored messages to model history. A message sent with
// attachments only is described by its file names; other messages without
// text are left out.
func toHistory(messages []database.Message) []llm.Turn {
	history := make([]llm.Turn, 0, len(messages))
	for _, message := range messages {
		text := message.Content
		if strings.TrimSpace(text) == "" {
			if len(message.Attachments) == 0 {
				continue
			}
			names := make([]string, 0, len(message.Attachments))
			for _, attachment := range message.Attachments {
				names = append(names, attachment.Name)
			}
			text = llm.SharedFilesText(names)
		}
		history = append(history, llm.Turn{Role: message.Role, Text: text})
	}
	return history
}

func dedupeAttachments(attachments []api.Attachment) []api.Attachment {
	seen := make(map[uuid.UUID]bool, len(attachments))
	out := make([]api.Attachment, 0, len(attachments))
	for _, attachment := range attachments {
		if !seen[attachment.Id] {
			seen[attachment.Id] = true
			out = append(out, attachment)
		}
	}
	return out
}

// Turn runs one exchange: it persists the user message, titles new
// conversations, relays the model's response as it streams and persists it.
// Events are emitted in the order message_saved, title_updated (first turn
// only), stream_start, stream_chunk..., stream_end. Errors are returned to the
// caller to report; nothing of the assistant response is persisted when the
// model fails.
func (s *Service) Turn(ctx context.Context, req api.ChatRequest, emit Emit) (err error) {
	defer func() {
		switch {
		case err == nil:
			chatTurnsTotal.WithLabelValues(resultOk).Inc()
		case IsDisconnect(err):
			chatTurnsTotal.WithLabelValues(resultDisconnect).Inc()
		case errors.Is(err, ErrResponseFailed):
			chatTurnsTotal.WithLabelValues(resultModelError).Inc()
		case errors.Is(err, ErrEmptyMessage), errors.Is(err, database.ErrConversationNotFound), errors.Is(err, ErrTooManyTurns):
			chatTurnsTotal.WithLabelValues(resultRejected).Inc()
		default:
			chatTurnsTotal.WithLabelValues(resultStoreError).Inc()
		}
	}()

	if err := req.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return ErrEmptyMessage
	}
	attachments := dedupeAttachments(req.Attachments)

	// Waits behind turns on the same conversation from other connections.
	if err := s.locks.Lock(ctx, req.ConversationId); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("rejecting chat turn", "conversation_id", req.ConversationId, "error", err)
		return ErrTooManyTurns
	}
	activeConversations.Set(float64(s.locks.Len()))
	defer func() {
		if err := s.locks.Unlock(req.ConversationId); err != nil {
			slog.Error("error releasing conversation lock", "conversation_id", req.ConversationId, "error", err)
		}
		activeConversations.Set(float64(s.locks.Len()))
	}()

	if _, err := database.GetConversation(ctx, s.db, req.ConversationId); err != nil {
		return err
	}

	history, err := database.GetMessages(ctx, s.db, req.ConversationId)
	if err != nil {
		return err
	}

	userMessage, err := database.AddMessage(ctx, s.db, req.ConversationId, database.RoleUser, req.Content, toDatabaseAttachments(attachments), nil)
	if err != nil {
		return err
	}

	if err := send(emit, api.EventMessageSaved, api.MessageSavedData{Id: userMessage.Id, Role: api.RoleUser, Content: req.Content}); err != nil {
		return err
	}

	if len(history) == 0 {
		if err := s.updateTitle(ctx, req, attachments, emit); err != nil {
			return err
		}
	}

	if err := send(emit, api.EventStreamStart, nil); err != nil {
		return err
	}

	prompt := llm.Prompt{
		History: toHistory(history),
		Parts:   s.loadParts(ctx, req.Content, attachments),
	}

	start := time.Now()
	var response strings.Builder
	chunks := 0
	for chunk, err := range s.provider.Stream(ctx, prompt) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("model stream failed", "conversation_id", req.ConversationId, "provider", s.provider.Name(), "error", err)
			return fmt.Errorf("%w: %w", ErrResponseFailed, err)
		}

		response.WriteString(chunk)
		chunks++
		if err := send(emit, api.EventStreamChunk, api.StreamChunkData{Content: chunk}); err != nil {
			return err
		}
	}
	streamDuration.WithLabelValues(s.provider.Name()).Observe(time.Since(start).Seconds())
	streamChunks.Observe(float64(chunks))

	metadata, err := json.Marshal(map[string]string{"provider": s.provider.Name(), "model": s.provider.Model()})
	if err != nil {
		return fmt.Errorf("error encoding message metadata: %w", err)
	}

	content := response.String()
	assistantMessage, err := database.AddMessage(ctx, s.db, req.ConversationId, database.RoleAssistant, content, nil, datatypes.JSON(metadata))
	if err != nil {
		return err
	}

	slog.Info("chat turn completed", "conversation_id", req.ConversationId, "chunks", chunks, "response_length", len(content))

	return send(emit, api.EventStreamEnd, api.StreamEndData{Id: assistantMessage.Id, Content: content})
}

// updateTitle names a new conversation after its first message. A failed
// title generation is logged and otherwise ignored.
func (s *Service) updateTitle(ctx context.Context, req api.ChatRequest, attachments []api.Attachment, emit Emit) error {
	seed := req.Content
	if strings.TrimSpace(seed) == "" {
		names := make([]string, 0, len(attachments))
		for _, attachment := range attachments {
			names = append(names, attachment.Name)
		}
		seed = llm.SharedFilesText(names)
	}

	title, err := s.provider.Title(ctx, seed)
	title = llm.NormalizeTitle(title)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		titleFailuresTotal.Inc()
		slog.Warn("failed to generate conversation title", "conversation_id", req.ConversationId, "error", err)
		return nil
	}
	if title == "" {
		return nil
	}

	if _, err := database.UpdateConversationTitle(ctx, s.db, req.ConversationId, title); err != nil {
		return err
	}

	return send(emit, api.EventTitleUpdated, api.TitleUpdatedData{ConversationId: req.ConversationId, Title: title})
}
