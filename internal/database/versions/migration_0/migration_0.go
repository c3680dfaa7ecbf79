package migration_0

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title     string    `gorm:"size:200;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	Messages    []Message    `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
	Attachments []Attachment `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
}

type Message struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index"`
	Role           string    `gorm:"size:20;not null;check:role IN ('user','assistant')"`
	Content        string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"index"`

	Attachments []Attachment `gorm:"foreignKey:MessageId;constraint:OnDelete:CASCADE"`
}

type Attachment struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageId      uuid.UUID `gorm:"type:uuid;not null;index"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"size:255;not null"`
	Kind           string    `gorm:"size:20;not null;check:kind IN ('image','pdf')"`
	Url            string    `gorm:"not null"`
	StorageKey     string    `gorm:"not null"`
	MimeType       string    `gorm:"size:100;not null"`
	CreatedAt      time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &Attachment{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
