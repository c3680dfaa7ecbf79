package messaging_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTask struct {
	queue   string
	payload []byte

	mu     sync.Mutex
	result string
	done   chan struct{}
}

func newRecordingTask(queue string, payload []byte) *recordingTask {
	return &recordingTask{queue: queue, payload: payload, done: make(chan struct{})}
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }
func (t *recordingTask) Ack() error      { return t.finish("ack") }
func (t *recordingTask) Nack() error     { return t.finish("nack") }
func (t *recordingTask) Reject() error   { return t.finish("reject") }

func (t *recordingTask) finish(result string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = result
	close(t.done)
	return nil
}

func (t *recordingTask) wait(tt *testing.T) string {
	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
		tt.Fatal("timed out waiting for task to finish")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

type taskChan chan messaging.Task

func (c taskChan) Tasks() <-chan messaging.Task { return c }
func (c taskChan) Close()                       {}

type failingStore struct {
	storage.ObjectStore
}

func (failingStore) DeleteObjects(ctx context.Context, prefix string) error {
	return errors.New("storage unavailable")
}

func startWorker(t *testing.T, store storage.ObjectStore) taskChan {
	tasks := make(taskChan)
	worker := messaging.NewCleanupWorker(store, tasks, 2)
	go worker.Start()
	t.Cleanup(worker.Stop)
	return tasks
}

func TestCleanupWorker_DeletesPrefixes(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir(), "http://localhost")
	require.NoError(t, err)
	ctx := context.Background()

	deleted, kept := uuid.New(), uuid.New()
	require.NoError(t, store.PutObject(ctx, storage.UploadKey(deleted, "a.png"), bytes.NewReader([]byte("a")), "image/png"))
	require.NoError(t, store.PutObject(ctx, storage.UploadKey(kept, "b.png"), bytes.NewReader([]byte("b")), "image/png"))

	tasks := startWorker(t, store)

	task := newRecordingTask(messaging.StorageCleanupQueue, []byte(`{"conversation_id":"`+uuid.NewString()+`","prefixes":["`+storage.UploadPrefix(deleted)+`"]}`))
	tasks <- task
	assert.Equal(t, "ack", task.wait(t))

	_, err = store.GetObject(ctx, storage.UploadKey(deleted, "a.png"))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	reader, err := store.GetObject(ctx, storage.UploadKey(kept, "b.png"))
	require.NoError(t, err)
	data, _ := io.ReadAll(reader)
	reader.Close()
	assert.Equal(t, "b", string(data))
}

func TestCleanupWorker_NacksOnStorageError(t *testing.T) {
	tasks := startWorker(t, failingStore{})

	task := newRecordingTask(messaging.StorageCleanupQueue, []byte(`{"prefixes":["uploads/x/"]}`))
	tasks <- task
	assert.Equal(t, "nack", task.wait(t))
}

// flakyStore fails the first delete and succeeds afterwards.
type flakyStore struct {
	storage.ObjectStore

	mu      sync.Mutex
	calls   int
	deleted chan string
}

func (s *flakyStore) DeleteObjects(ctx context.Context, prefix string) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	if first {
		return errors.New("storage unavailable")
	}
	s.deleted <- prefix
	return nil
}

func TestCleanupWorker_RetriesTransientFailureFromInMemoryQueue(t *testing.T) {
	store := &flakyStore{deleted: make(chan string, 1)}
	queue := messaging.NewInMemoryQueue()
	worker := messaging.NewCleanupWorker(store, queue, 1)
	go worker.Start()
	t.Cleanup(worker.Stop)

	require.NoError(t, queue.PublishCleanupTask(context.Background(), messaging.StorageCleanupPayload{Prefixes: []string{"uploads/retry/"}}))

	select {
	case prefix := <-store.deleted:
		assert.Equal(t, "uploads/retry/", prefix)
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup was not retried")
	}
}

func TestCleanupWorker_RejectsInvalidTasks(t *testing.T) {
	tasks := startWorker(t, failingStore{})

	badPayload := newRecordingTask(messaging.StorageCleanupQueue, []byte(`not json`))
	tasks <- badPayload
	assert.Equal(t, "reject", badPayload.wait(t))

	unknownType := newRecordingTask("unknown_queue", []byte(`{}`))
	tasks <- unknownType
	assert.Equal(t, "reject", unknownType.wait(t))
}

func TestCleanupWorker_StopsWhenQueueClosed(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	worker := messaging.NewCleanupWorker(failingStore{}, queue, 1)

	done := make(chan struct{})
	go func() {
		worker.Start()
		close(done)
	}()

	queue.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue was closed")
	}
}
