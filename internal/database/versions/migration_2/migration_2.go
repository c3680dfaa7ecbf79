package migration_2

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const historyIndex = "idx_messages_conversation_created"

type Message struct {
	ConversationId uuid.UUID `gorm:"type:uuid;index:idx_messages_conversation_created,priority:1"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created,priority:2"`
}

// Migration indexes messages for reading a conversation's history in order.
func Migration(db *gorm.DB) error {
	if err := db.Migrator().CreateIndex(&Message{}, historyIndex); err != nil {
		return fmt.Errorf("error creating index %s: %w", historyIndex, err)
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropIndex(&Message{}, historyIndex); err != nil {
		return fmt.Errorf("error dropping index %s: %w", historyIndex, err)
	}
	return nil
}
