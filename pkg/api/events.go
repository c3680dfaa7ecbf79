package api

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound socket message types.
const (
	RequestChat = "chat"
	RequestPing = "ping"
)

// Outbound socket event types.
const (
	EventMessageSaved = "message_saved"
	EventTitleUpdated = "title_updated"
	EventStreamStart  = "stream_start"
	EventStreamChunk  = "stream_chunk"
	EventStreamEnd    = "stream_end"
	EventError        = "error"
	EventPong         = "pong"
)

// SocketRequest is the flat shape of every message a client sends over the
// socket. Only Type is read for pings.
type SocketRequest struct {
	Type           string       `json:"type"`
	ConversationId uuid.UUID    `json:"conversation_id"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
}

type ChatRequest struct {
	ConversationId uuid.UUID    `json:"conversation_id" validate:"required"`
	Content        string       `json:"content" validate:"max=100000"`
	Attachments    []Attachment `json:"attachments" validate:"max=10,dive"`
}

func (r SocketRequest) ChatRequest() ChatRequest {
	return ChatRequest{
		ConversationId: r.ConversationId,
		Content:        r.Content,
		Attachments:    r.Attachments,
	}
}

func NewChatRequest(conversationId uuid.UUID, content string, attachments []Attachment) SocketRequest {
	return SocketRequest{
		Type:           RequestChat,
		ConversationId: conversationId,
		Content:        content,
		Attachments:    attachments,
	}
}

func NewPingRequest() SocketRequest {
	return SocketRequest{Type: RequestPing}
}

// Event is the envelope for everything the server pushes over the socket.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type MessageSavedData struct {
	Id      uuid.UUID `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
}

type TitleUpdatedData struct {
	ConversationId uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
}

type StreamChunkData struct {
	Content string `json:"content"`
}

type StreamEndData struct {
	Id      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func NewEvent(eventType string, data any) (Event, error) {
	if data == nil {
		data = struct{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

// MustEvent is NewEvent for payload types that always marshal.
func MustEvent(eventType string, data any) Event {
	event, err := NewEvent(eventType, data)
	if err != nil {
		panic(err)
	}
	return event
}

func (e Event) Decode(dest any) error {
	return json.Unmarshal(e.Data, dest)
}
