package api

import (
	"docchat-backend/internal/database"
	"docchat-backend/pkg/api"
)

func convertConversation(c database.Conversation) api.Conversation {
	return api.Conversation{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func convertConversations(cs []database.Conversation) []api.Conversation {
	conversations := make([]api.Conversation, 0, len(cs))
	for _, c := range cs {
		conversations = append(conversations, convertConversation(c))
	}
	return conversations
}

func convertAttachment(a database.Attachment) api.Attachment {
	return api.Attachment{
		Id:       a.Id,
		Name:     a.Name,
		Type:     a.Kind,
		Url:      a.Url,
		MimeType: a.MimeType,
	}
}

func convertMessage(m database.Message) api.Message {
	attachments := make([]api.Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, convertAttachment(a))
	}
	return api.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		Role:           m.Role,
		Content:        m.Content,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
	}
}

func convertMessages(ms []database.Message) []api.Message {
	messages := make([]api.Message, 0, len(ms))
	for _, m := range ms {
		messages = append(messages, convertMessage(m))
	}
	return messages
}
