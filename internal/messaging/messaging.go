package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	StorageCleanupQueue = "storage_cleanup_queue"
	// Rejected cleanup tasks are dead-lettered here for inspection.
	StorageCleanupDeadLetterQueue = "storage_cleanup_queue.dead"
	RetryDelay                    = 5 * time.Second
	MaxConnectRetry               = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	// Nack returns a task that failed for a transient reason. It is delivered
	// once more; a second Nack discards it like Reject.
	Nack() error

	// Reject discards a task that cannot succeed.
	Reject() error
}

// StorageCleanupPayload lists the object prefixes left behind by a deleted
// conversation.
type StorageCleanupPayload struct {
	ConversationId uuid.UUID `json:"conversation_id"`
	Prefixes       []string  `json:"prefixes"`
}

type Publisher interface {
	PublishCleanupTask(ctx context.Context, payload StorageCleanupPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
