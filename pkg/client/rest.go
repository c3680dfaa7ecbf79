package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docchat-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const defaultTimeout = 60 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type RESTClient struct {
	client         *resty.Client
	maxUploadBytes int64
}

func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		client:         resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/")).SetTimeout(defaultTimeout),
		maxUploadBytes: api.DefaultMaxUploadBytes,
	}
}

// SetMaxUploadBytes matches the client side upload check to the server's
// configured limit.
func (c *RESTClient) SetMaxUploadBytes(maxBytes int64) *RESTClient {
	c.maxUploadBytes = maxBytes
	return c
}

func (c *RESTClient) do(req *resty.Request, method, endpoint string, result any) error {
	res, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("error calling %s %s: %w", method, endpoint, err)
	}

	if !res.IsSuccess() {
		return &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}

	if result != nil {
		if err := json.Unmarshal(res.Body(), result); err != nil {
			return fmt.Errorf("error parsing response from %s %s: %w", method, endpoint, err)
		}
	}
	return nil
}

func (c *RESTClient) Info(ctx context.Context) (api.ServiceInfo, error) {
	var info api.ServiceInfo
	err := c.do(c.client.R().SetContext(ctx), http.MethodGet, "/", &info)
	return info, err
}

func (c *RESTClient) Health(ctx context.Context) (api.HealthResponse, error) {
	var health api.HealthResponse
	err := c.do(c.client.R().SetContext(ctx), http.MethodGet, "/health", &health)
	return health, err
}

func (c *RESTClient) CreateConversation(ctx context.Context, title string) (api.Conversation, error) {
	var conversation api.Conversation
	req := c.client.R().SetContext(ctx).SetBody(api.CreateConversationRequest{Title: title})
	err := c.do(req, http.MethodPost, "/api/conversations", &conversation)
	return conversation, err
}

// ListConversations returns conversations most recently active first. A limit
// of zero uses the server default.
func (c *RESTClient) ListConversations(ctx context.Context, limit, offset int) ([]api.Conversation, error) {
	req := c.client.R().SetContext(ctx)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		req.SetQueryParam("offset", strconv.Itoa(offset))
	}

	var conversations []api.Conversation
	err := c.do(req, http.MethodGet, "/api/conversations", &conversations)
	return conversations, err
}

func (c *RESTClient) GetConversation(ctx context.Context, id uuid.UUID) (api.Conversation, error) {
	var conversation api.Conversation
	err := c.do(c.client.R().SetContext(ctx), http.MethodGet, "/api/conversations/"+id.String(), &conversation)
	return conversation, err
}

func (c *RESTClient) RenameConversation(ctx context.Context, id uuid.UUID, title string) (api.Conversation, error) {
	var conversation api.Conversation
	req := c.client.R().SetContext(ctx).SetBody(api.UpdateConversationRequest{Title: title})
	err := c.do(req, http.MethodPatch, "/api/conversations/"+id.String(), &conversation)
	return conversation, err
}

func (c *RESTClient) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return c.do(c.client.R().SetContext(ctx), http.MethodDelete, "/api/conversations/"+id.String(), nil)
}

func (c *RESTClient) GetMessages(ctx context.Context, id uuid.UUID) ([]api.Message, error) {
	var messages []api.Message
	err := c.do(c.client.R().SetContext(ctx), http.MethodGet, "/api/conversations/"+id.String()+"/messages", &messages)
	return messages, err
}

// Upload sends a file to the server. Files outside the allow-list or over the
// size limit are rejected with an *api.UploadError before any request is made.
func (c *RESTClient) Upload(ctx context.Context, name, mimeType string, size int64, data io.Reader) (api.Attachment, error) {
	if _, err := api.CheckUpload(mimeType, size, c.maxUploadBytes); err != nil {
		return api.Attachment{}, err
	}

	req := c.client.R().SetContext(ctx).SetMultipartField("file", name, mimeType, data)

	var res api.UploadResponse
	if err := c.do(req, http.MethodPost, "/api/upload", &res); err != nil {
		return api.Attachment{}, err
	}

	return api.Attachment{
		Id:       res.Id,
		Name:     res.Name,
		Type:     res.Type,
		Url:      res.Url,
		MimeType: res.MimeType,
	}, nil
}

// UploadFile uploads a local file, taking its media type from the extension.
func (c *RESTClient) UploadFile(ctx context.Context, path string) (api.Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.Attachment{}, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return api.Attachment{}, fmt.Errorf("error reading %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return c.Upload(ctx, filepath.Base(path), mimeType, info.Size(), file)
}
