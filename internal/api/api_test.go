package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backend "docchat-backend/internal/api"
	"docchat-backend/internal/database"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"
	"docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())
	return db
}

type testEnv struct {
	db     *gorm.DB
	store  *storage.LocalObjectStore
	queue  *messaging.InMemoryQueue
	router chi.Router
}

func setup(t *testing.T, maxUploadBytes int64) testEnv {
	t.Helper()
	db := createDB(t)

	store, err := storage.NewLocalObjectStore(t.TempDir(), "http://localhost:8000")
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	service := backend.NewBackendService(db, store, queue, maxUploadBytes)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return testEnv{db: db, store: store, queue: queue, router: router}
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServiceInfoAndHealth(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)

	info := decode[api.ServiceInfo](t, doRequest(t, env.router, http.MethodGet, "/", nil))
	assert.Equal(t, api.ServiceInfo{Message: "Chat Document API", Version: "1.0.0"}, info)

	health := decode[api.HealthResponse](t, doRequest(t, env.router, http.MethodGet, "/health", nil))
	assert.Equal(t, "healthy", health.Status)
}

func TestCreateConversation(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)

	t.Run("DefaultTitle", func(t *testing.T) {
		for _, body := range []any{nil, api.CreateConversationRequest{}, api.CreateConversationRequest{Title: "   "}} {
			conversation := decode[api.Conversation](t, doRequest(t, env.router, http.MethodPost, "/api/conversations", body))
			assert.Equal(t, api.DefaultConversationTitle, conversation.Title)
			assert.NotEqual(t, uuid.Nil, conversation.Id)
			assert.False(t, conversation.CreatedAt.IsZero())
		}
	})

	t.Run("CustomTitle", func(t *testing.T) {
		conversation := decode[api.Conversation](t, doRequest(t, env.router, http.MethodPost, "/api/conversations", api.CreateConversationRequest{Title: "Tax documents"}))
		assert.Equal(t, "Tax documents", conversation.Title)

		fetched := decode[api.Conversation](t, doRequest(t, env.router, http.MethodGet, "/api/conversations/"+conversation.Id.String(), nil))
		assert.Equal(t, conversation.Id, fetched.Id)
		assert.Equal(t, "Tax documents", fetched.Title)
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		long := string(bytes.Repeat([]byte("a"), 201))
		rec := doRequest(t, env.router, http.MethodPost, "/api/conversations", api.CreateConversationRequest{Title: long})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/conversations", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListConversations(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		conversation, err := database.CreateConversation(ctx, env.db, fmt.Sprintf("conversation %d", i))
		require.NoError(t, err)
		ids = append(ids, conversation.Id)
		time.Sleep(5 * time.Millisecond)
	}

	// Activity moves the oldest conversation to the front.
	_, err := database.AddMessage(ctx, env.db, ids[0], database.RoleUser, "bump", nil, nil)
	require.NoError(t, err)

	conversations := decode[[]api.Conversation](t, doRequest(t, env.router, http.MethodGet, "/api/conversations", nil))
	require.Len(t, conversations, 3)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2], ids[1]}, []uuid.UUID{conversations[0].Id, conversations[1].Id, conversations[2].Id})

	page := decode[[]api.Conversation](t, doRequest(t, env.router, http.MethodGet, "/api/conversations?limit=1&offset=1", nil))
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].Id)

	assert.Equal(t, http.StatusUnprocessableEntity, doRequest(t, env.router, http.MethodGet, "/api/conversations?limit=501", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, env.router, http.MethodGet, "/api/conversations?limit=abc", nil).Code)
}

func TestGetConversationErrors(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)

	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodGet, "/api/conversations/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, env.router, http.MethodGet, "/api/conversations/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodGet, "/api/conversations/"+uuid.NewString()+"/messages", nil).Code)
}

func TestUpdateConversation(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)

	conversation, err := database.CreateConversation(context.Background(), env.db, api.DefaultConversationTitle)
	require.NoError(t, err)
	path := "/api/conversations/" + conversation.Id.String()

	updated := decode[api.Conversation](t, doRequest(t, env.router, http.MethodPatch, path, api.UpdateConversationRequest{Title: "  Renamed  "}))
	assert.Equal(t, "Renamed", updated.Title)
	assert.False(t, updated.UpdatedAt.Before(conversation.UpdatedAt))

	assert.Equal(t, http.StatusUnprocessableEntity, doRequest(t, env.router, http.MethodPatch, path, api.UpdateConversationRequest{Title: ""}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, doRequest(t, env.router, http.MethodPatch, path, api.UpdateConversationRequest{Title: "   "}).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodPatch, "/api/conversations/"+uuid.NewString(), api.UpdateConversationRequest{Title: "x"}).Code)
}

func TestGetMessages(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)
	ctx := context.Background()

	conversation, err := database.CreateConversation(ctx, env.db, "c")
	require.NoError(t, err)

	attachmentId := uuid.New()
	_, err = database.AddMessage(ctx, env.db, conversation.Id, database.RoleUser, "look at this", []database.Attachment{{
		Id:         attachmentId,
		Name:       "scan.pdf",
		Kind:       database.KindPDF,
		Url:        "http://localhost:8000/files/uploads/x/scan.pdf",
		StorageKey: storage.UploadKey(attachmentId, "scan.pdf"),
		MimeType:   "application/pdf",
	}}, nil)
	require.NoError(t, err)
	_, err = database.AddMessage(ctx, env.db, conversation.Id, database.RoleAssistant, "it is a scan", nil, nil)
	require.NoError(t, err)

	messages := decode[[]api.Message](t, doRequest(t, env.router, http.MethodGet, "/api/conversations/"+conversation.Id.String()+"/messages", nil))
	require.Len(t, messages, 2)

	assert.Equal(t, api.RoleUser, messages[0].Role)
	assert.Equal(t, "look at this", messages[0].Content)
	assert.Equal(t, []api.Attachment{{
		Id:       attachmentId,
		Name:     "scan.pdf",
		Type:     api.KindPDF,
		Url:      "http://localhost:8000/files/uploads/x/scan.pdf",
		MimeType: "application/pdf",
	}}, messages[0].Attachments)

	assert.Equal(t, api.RoleAssistant, messages[1].Role)
	assert.Empty(t, messages[1].Attachments)
}

func TestDeleteConversation(t *testing.T) {
	env := setup(t, api.DefaultMaxUploadBytes)
	ctx := context.Background()

	conversation, err := database.CreateConversation(ctx, env.db, "c")
	require.NoError(t, err)

	first, second := uuid.New(), uuid.New()
	attachments := []database.Attachment{
		{Id: first, Name: "a.png", Kind: database.KindImage, Url: "u", StorageKey: storage.UploadKey(first, "a.png"), MimeType: "image/png"},
		{Id: second, Name: "b.pdf", Kind: database.KindPDF, Url: "u", StorageKey: storage.UploadKey(second, "b.pdf"), MimeType: "application/pdf"},
	}
	_, err = database.AddMessage(ctx, env.db, conversation.Id, database.RoleUser, "files", attachments, nil)
	require.NoError(t, err)

	path := "/api/conversations/" + conversation.Id.String()

	res := decode[api.DeleteConversationResponse](t, doRequest(t, env.router, http.MethodDelete, path, nil))
	assert.Equal(t, "Conversation deleted", res.Message)

	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodGet, path+"/messages", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, env.router, http.MethodDelete, path, nil).Code)

	var count int64
	require.NoError(t, env.db.Model(&database.Message{}).Where("conversation_id = ?", conversation.Id).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, env.db.Model(&database.Attachment{}).Where("conversation_id = ?", conversation.Id).Count(&count).Error)
	assert.Zero(t, count)

	select {
	case task := <-env.queue.Tasks():
		assert.Equal(t, messaging.StorageCleanupQueue, task.Type())
		var payload messaging.StorageCleanupPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, conversation.Id, payload.ConversationId)
		assert.ElementsMatch(t, []string{storage.UploadPrefix(first), storage.UploadPrefix(second)}, payload.Prefixes)
	case <-time.After(time.Second):
		t.Fatal("no cleanup task published")
	}
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	env := setup(t, 1024)

	t.Run("Image", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, "my photo.png", "image/png", []byte("png-bytes")))

		res := decode[api.UploadResponse](t, rec)
		assert.Equal(t, "my photo.png", res.Name)
		assert.Equal(t, api.KindImage, res.Type)
		assert.Equal(t, "image/png", res.MimeType)

		key := storage.UploadKey(res.Id, res.Name)
		assert.Equal(t, env.store.PublicURL(key), res.Url)

		reader, err := env.store.GetObject(context.Background(), key)
		require.NoError(t, err)
		defer reader.Close()
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})

	t.Run("PDFDetectedFromExtension", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, "report.pdf", "application/octet-stream", []byte("%PDF-1.4")))

		res := decode[api.UploadResponse](t, rec)
		assert.Equal(t, api.KindPDF, res.Type)
		assert.Equal(t, "application/pdf", res.MimeType)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, "notes.txt", "text/plain", []byte("hello")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Unsupported file type: text/plain")
	})

	t.Run("TooLarge", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, "big.png", "image/png", bytes.Repeat([]byte("x"), 2048)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "File too large")
	})

	t.Run("BodyOverLimit", func(t *testing.T) {
		// Larger than the file cap plus the multipart allowance, so the body
		// reader itself stops the upload.
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, "huge.png", "image/png", bytes.Repeat([]byte("x"), 2<<20)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "File too large")
	})

	t.Run("LongName", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, multipartUpload(t, strings.Repeat("n", 400)+".png", "image/png", []byte("png-bytes")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode[api.UploadResponse](t, rec)
		assert.Equal(t, api.MaxAttachmentNameLength, len(res.Name))
		assert.True(t, strings.HasSuffix(res.Name, ".png"))

		chatReq := api.ChatRequest{ConversationId: uuid.New(), Content: "look", Attachments: []api.Attachment{api.Attachment(res)}}
		assert.NoError(t, chatReq.Validate())
	})

	t.Run("MissingFile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(nil))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	objects, err := env.store.ListObjects(context.Background(), "uploads/")
	require.NoError(t, err)
	assert.Len(t, objects, 3)
}
