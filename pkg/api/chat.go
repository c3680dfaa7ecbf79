package api

import (
	"time"

	"github.com/google/uuid"
)

const DefaultConversationTitle = "New Conversation"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	Id        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Attachment struct {
	Id       uuid.UUID `json:"id" validate:"required"`
	Name     string    `json:"name" validate:"required,max=255"`
	Type     string    `json:"type" validate:"required,oneof=image pdf"`
	Url      string    `json:"url" validate:"required"`
	MimeType string    `json:"mime_type" validate:"required"`
}

type Message struct {
	Id             uuid.UUID    `json:"id"`
	ConversationId uuid.UUID    `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"created_at"`
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type UpdateConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type ListConversationsParams struct {
	Limit  int `schema:"limit" validate:"gte=0,lte=500"`
	Offset int `schema:"offset" validate:"gte=0"`
}

type DeleteConversationResponse struct {
	Message string `json:"message"`
}

type UploadResponse struct {
	Id       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Url      string    `json:"url"`
	MimeType string    `json:"mime_type"`
}

type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
