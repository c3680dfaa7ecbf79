package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrConversationNotFound = errors.New("conversation not found")

func CreateConversation(ctx context.Context, db *gorm.DB, title string) (Conversation, error) {
	now := time.Now().UTC()
	conversation := Conversation{
		Id:        uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return Conversation{}, fmt.Errorf("error creating conversation: %w", err)
	}

	return conversation, nil
}

// ListConversations returns conversations most recently active first. A limit
// of zero or less returns every conversation.
func ListConversations(ctx context.Context, db *gorm.DB, limit, offset int) ([]Conversation, error) {
	query := db.WithContext(ctx).Order("updated_at DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var conversations []Conversation
	if err := query.Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("error listing conversations: %w", err)
	}
	return conversations, nil
}

func GetConversation(ctx context.Context, db *gorm.DB, id uuid.UUID) (Conversation, error) {
	var conversation Conversation
	if err := db.WithContext(ctx).First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, fmt.Errorf("error getting conversation %s: %w", id, err)
	}
	return conversation, nil
}

func UpdateConversationTitle(ctx context.Context, db *gorm.DB, id uuid.UUID, title string) (Conversation, error) {
	result := db.WithContext(ctx).
		Model(&Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{"title": title, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return Conversation{}, fmt.Errorf("error updating title of conversation %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return Conversation{}, ErrConversationNotFound
	}

	return GetConversation(ctx, db, id)
}

// DeleteConversation removes the conversation with its messages and
// attachments and returns the storage keys of the removed attachments so the
// objects can be cleaned up.
func DeleteConversation(ctx context.Context, db *gorm.DB, id uuid.UUID) ([]string, error) {
	var storageKeys []string

	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var conversation Conversation
		if err := txn.First(&conversation, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("error getting conversation %s: %w", id, err)
		}

		if err := txn.Model(&Attachment{}).Where("conversation_id = ?", id).Pluck("storage_key", &storageKeys).Error; err != nil {
			return fmt.Errorf("error listing attachments of conversation %s: %w", id, err)
		}

		if err := txn.Delete(&Attachment{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting attachments of conversation %s: %w", id, err)
		}

		if err := txn.Delete(&Message{}, "conversation_id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting messages of conversation %s: %w", id, err)
		}

		if err := txn.Delete(&Conversation{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("error deleting conversation %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return storageKeys, nil
}
