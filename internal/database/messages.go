package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AddMessage stores a message and its attachments and bumps the owning
// conversation's updated_at, all in one transaction. The MessageId and
// ConversationId of the attachments are filled in here.
func AddMessage(ctx context.Context, db *gorm.DB, conversationId uuid.UUID, role, content string, attachments []Attachment, metadata datatypes.JSON) (Message, error) {
	now := time.Now().UTC()
	message := Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		Metadata:       metadata,
	}

	for _, attachment := range attachments {
		attachment.MessageId = message.Id
		attachment.ConversationId = conversationId
		attachment.CreatedAt = now
		message.Attachments = append(message.Attachments, attachment)
	}

	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&Conversation{}).Where("id = ?", conversationId).Update("updated_at", now)
		if result.Error != nil {
			return fmt.Errorf("error updating conversation %s: %w", conversationId, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}

		if err := txn.Create(&message).Error; err != nil {
			return fmt.Errorf("error creating message: %w", err)
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	return message, nil
}

// GetMessages returns the conversation's messages oldest first, with their
// attachments preloaded.
func GetMessages(ctx context.Context, db *gorm.DB, conversationId uuid.UUID) ([]Message, error) {
	var messages []Message
	err := db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("conversation_id = ?", conversationId).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("error getting messages of conversation %s: %w", conversationId, err)
	}
	return messages, nil
}
