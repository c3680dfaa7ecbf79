//go:build integration

package integrationtests

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"docchat-backend/internal/database"
	"docchat-backend/internal/llm"
	"docchat-backend/internal/storage"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const (
	minioUser     = "minio-test"
	minioSecret   = "minio-test-secret"
	minioImage    = "minio/minio:RELEASE.2024-01-16T16-07-38Z"
	postgresImage = "postgres:16-alpine"

	bucketName = "chat-files"
)

// createObjectStore starts MinIO and returns a store on a fresh, publicly
// readable bucket.
func createObjectStore(t *testing.T, ctx context.Context) *storage.S3ObjectStore {
	t.Helper()

	ctr, err := minio.Run(ctx, minioImage, minio.WithUsername(minioUser), minio.WithPassword(minioSecret))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "starting minio")

	hostPort, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := storage.NewS3ObjectStore(bucketName, storage.S3ClientConfig{
		Endpoint:        "http://" + hostPort,
		Region:          "us-east-1",
		AccessKeyID:     minioUser,
		SecretAccessKey: minioSecret,
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(ctx))

	return store
}

// createDB starts Postgres and returns a migrated connection to it.
func createDB(t *testing.T, ctx context.Context) *gorm.DB {
	t.Helper()

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("docchat"),
		postgres.WithUsername("docchat"),
		postgres.WithPassword("docchat"),
		// Postgres logs readiness once for the init run and again after restart.
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "starting postgres")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(dsn, "")
	require.NoError(t, err)
	return db
}

func requireOK(t *testing.T, handler http.Handler, method, endpoint string) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, endpoint, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// echoProvider streams a fixed reply and records what it was sent.
type echoProvider struct {
	chunks []string

	mu      sync.Mutex
	prompts []llm.Prompt
}

func (p *echoProvider) Name() string  { return "echo" }
func (p *echoProvider) Model() string { return "echo-1" }

func (p *echoProvider) Stream(ctx context.Context, prompt llm.Prompt) iter.Seq2[string, error] {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, chunk := range p.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (p *echoProvider) Title(ctx context.Context, firstMessage string) (string, error) {
	return "Document Review", nil
}

func (p *echoProvider) lastPrompt() llm.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}
