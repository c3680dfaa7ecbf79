package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docchat-backend/internal/storage"
	"docchat-backend/internal/utils"
)

const cleanupTaskTimeout = 2 * time.Minute

// CleanupWorker deletes the stored objects of deleted conversations.
type CleanupWorker struct {
	store      storage.ObjectStore
	receiver   Receiver
	maxWorkers int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewCleanupWorker(store storage.ObjectStore, receiver Receiver, maxWorkers int) *CleanupWorker {
	return &CleanupWorker{
		store:      store,
		receiver:   receiver,
		maxWorkers: max(maxWorkers, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start processes tasks until Stop is called or the receiver's task channel
// is closed.
func (w *CleanupWorker) Start() {
	defer close(w.done)

	slog.Info("cleanup worker started")
	for {
		select {
		case task, ok := <-w.receiver.Tasks():
			if !ok {
				slog.Info("task channel closed, stopping cleanup worker")
				return
			}
			w.processTask(task)
		case <-w.stop:
			slog.Info("cleanup worker stopped")
			return
		}
	}
}

// Stop signals the worker and waits for Start to return.
func (w *CleanupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *CleanupWorker) processTask(task Task) {
	switch task.Type() {
	case StorageCleanupQueue:
		var payload StorageCleanupPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error parsing cleanup task payload", "error", err)
			w.reject(task)
			return
		}

		if err := w.runCleanup(payload); err != nil {
			// Storage failures may be transient, so the task gets another try.
			slog.Error("error running cleanup task", "conversation_id", payload.ConversationId, "error", err)
			if err := task.Nack(); err != nil {
				slog.Error("error returning task to queue", "error", err)
			}
			return
		}

		if err := task.Ack(); err != nil {
			slog.Error("error acking task", "error", err)
		}
	default:
		slog.Error("received task with invalid type", "type", task.Type())
		w.reject(task)
	}
}

func (w *CleanupWorker) reject(task Task) {
	if err := task.Reject(); err != nil {
		slog.Error("error rejecting task", "error", err)
	}
}

func (w *CleanupWorker) runCleanup(payload StorageCleanupPayload) error {
	if len(payload.Prefixes) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTaskTimeout)
	defer cancel()

	results := utils.RunInPool(ctx, payload.Prefixes, w.maxWorkers, func(ctx context.Context, prefix string) (struct{}, error) {
		return struct{}{}, w.store.DeleteObjects(ctx, prefix)
	})

	var errs []error
	for _, failed := range utils.Failures(results) {
		slog.Error("error deleting objects", "conversation_id", payload.ConversationId, "prefix", failed.Input, "error", failed.Error)
		errs = append(errs, failed.Error)
	}

	slog.Info("storage cleanup finished", "conversation_id", payload.ConversationId, "deleted_prefixes", len(results)-len(errs), "failed_prefixes", len(errs))

	return errors.Join(errs...)
}
