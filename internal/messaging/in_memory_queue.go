package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

const inMemoryQueueSize = 100

// localTask is settled in process. Only Nack has an effect: it puts a first
// delivery back on its queue.
type localTask struct {
	kind        string
	body        []byte
	queue       *InMemoryQueue
	redelivered bool
}

func (t localTask) Type() string    { return t.kind }
func (t localTask) Payload() []byte { return t.body }
func (t localTask) Ack() error      { return nil }
func (t localTask) Reject() error   { return nil }

func (t localTask) Nack() error {
	if t.redelivered {
		return nil
	}
	t.redelivered = true
	return t.queue.requeue(t)
}

// InMemoryQueue is both a Publisher and a Receiver for single process
// deployments. Publishing blocks once inMemoryQueueSize tasks are waiting.
type InMemoryQueue struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan Task
}

var (
	_ Publisher = (*InMemoryQueue)(nil)
	_ Receiver  = (*InMemoryQueue)(nil)
)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{tasks: make(chan Task, inMemoryQueueSize)}
}

func (q *InMemoryQueue) PublishCleanupTask(ctx context.Context, payload StorageCleanupPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding cleanup task for conversation %s: %w", payload.ConversationId, err)
	}

	// Held for the whole send so Close cannot close the channel under it.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- localTask{kind: StorageCleanupQueue, body: body, queue: q}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeue never blocks, since the caller is usually the queue's only
// consumer.
func (q *InMemoryQueue) requeue(task localTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return fmt.Errorf("queue is full, dropping %s task", task.kind)
	}
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

// Pending reports how many published tasks have not been received yet.
func (q *InMemoryQueue) Pending() int {
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}
