package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"docchat-backend/internal/database"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"
	"docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	ServiceName    = "Chat Document API"
	ServiceVersion = "1.0.0"

	DefaultListLimit = 100

	cleanupPublishTimeout = 10 * time.Second
)

type BackendService struct {
	db             *gorm.DB
	store          storage.ObjectStore
	publisher      messaging.Publisher
	maxUploadBytes int64
}

func NewBackendService(db *gorm.DB, store storage.ObjectStore, pub messaging.Publisher, maxUploadBytes int64) *BackendService {
	return &BackendService{db: db, store: store, publisher: pub, maxUploadBytes: maxUploadBytes}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.ServiceInfo))
	r.Get("/health", RestHandler(s.Health))

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", RestHandler(s.CreateConversation))
			r.Get("/", RestHandler(s.ListConversations))
			r.Get("/{conversation_id}", RestHandler(s.GetConversation))
			r.Patch("/{conversation_id}", RestHandler(s.UpdateConversation))
			r.Delete("/{conversation_id}", RestHandler(s.DeleteConversation))
			r.Get("/{conversation_id}/messages", RestHandler(s.GetMessages))
		})
		r.Post("/upload", RestHandler(s.Upload))
	})
}

func (s *BackendService) ServiceInfo(r *http.Request) (any, error) {
	return api.ServiceInfo{Message: ServiceName, Version: ServiceVersion}, nil
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{Status: "healthy"}, nil
}

func notFoundOr500(err error, msg string) error {
	if errors.Is(err, database.ErrConversationNotFound) {
		return CodedErrorf(http.StatusNotFound, "Conversation not found")
	}
	slog.Error(msg, "error", err)
	return CodedErrorf(http.StatusInternalServerError, "%s", msg)
}

func (s *BackendService) CreateConversation(r *http.Request) (any, error) {
	req := api.CreateConversationRequest{}
	if r.ContentLength != 0 {
		var err error
		if req, err = ParseRequest[api.CreateConversationRequest](r); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = api.DefaultConversationTitle
	}

	conversation, err := database.CreateConversation(r.Context(), s.db, title)
	if err != nil {
		slog.Error("error creating conversation", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create conversation")
	}

	slog.Info("created conversation", "conversation_id", conversation.Id)

	return convertConversation(conversation), nil
}

func (s *BackendService) ListConversations(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListConversationsParams](r)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	conversations, err := database.ListConversations(r.Context(), s.db, limit, params.Offset)
	if err != nil {
		slog.Error("error listing conversations", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list conversations")
	}

	return convertConversations(conversations), nil
}

func (s *BackendService) GetConversation(r *http.Request) (any, error) {
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	conversation, err := database.GetConversation(r.Context(), s.db, conversationId)
	if err != nil {
		return nil, notFoundOr500(err, "failed to get conversation")
	}

	return convertConversation(conversation), nil
}

func (s *BackendService) UpdateConversation(r *http.Request) (any, error) {
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.UpdateConversationRequest](r)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "title must not be empty")
	}

	conversation, err := database.UpdateConversationTitle(r.Context(), s.db, conversationId, title)
	if err != nil {
		return nil, notFoundOr500(err, "failed to update conversation")
	}

	return convertConversation(conversation), nil
}

// cleanupPrefixes maps attachment storage keys to the distinct upload
// prefixes that hold them.
func cleanupPrefixes(storageKeys []string) []string {
	prefixes := make([]string, 0, len(storageKeys))
	for _, key := range storageKeys {
		if prefix := storage.PrefixOfKey(key); !slices.Contains(prefixes, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes
}

func (s *BackendService) DeleteConversation(r *http.Request) (any, error) {
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	storageKeys, err := database.DeleteConversation(r.Context(), s.db, conversationId)
	if err != nil {
		return nil, notFoundOr500(err, "failed to delete conversation")
	}

	if prefixes := cleanupPrefixes(storageKeys); len(prefixes) > 0 {
		// The conversation is already gone, so a failed publish only leaves
		// orphaned objects behind.
		ctx, cancel := context.WithTimeout(context.Background(), cleanupPublishTimeout)
		defer cancel()

		payload := messaging.StorageCleanupPayload{ConversationId: conversationId, Prefixes: prefixes}
		if err := s.publisher.PublishCleanupTask(ctx, payload); err != nil {
			cleanupPublishFailuresTotal.Inc()
			slog.Error("error publishing storage cleanup task", "conversation_id", conversationId, "error", err)
		}
	}

	slog.Info("deleted conversation", "conversation_id", conversationId, "attachments", len(storageKeys))

	return api.DeleteConversationResponse{Message: "Conversation deleted"}, nil
}

func (s *BackendService) GetMessages(r *http.Request) (any, error) {
	conversationId, err := URLParamUUID(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	if _, err := database.GetConversation(ctx, s.db, conversationId); err != nil {
		return nil, notFoundOr500(err, "failed to get conversation")
	}

	messages, err := database.GetMessages(ctx, s.db, conversationId)
	if err != nil {
		slog.Error("error getting messages", "conversation_id", conversationId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to get messages")
	}

	return convertMessages(messages), nil
}
