package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"docchat-backend/internal/database"
	"docchat-backend/internal/llm"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

type DatabaseConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/docchat.db"`
}

func CreateDatabase(cfg DatabaseConfig) *gorm.DB {
	db, err := database.Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

type StorageConfig struct {
	Backend       string `env:"STORAGE_BACKEND" envDefault:"local"`
	LocalDir      string `env:"LOCAL_STORAGE_DIR" envDefault:"./data/files"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8000"`

	Bucket            string `env:"S3_BUCKET" envDefault:"chat-files"`
	S3Endpoint        string `env:"S3_ENDPOINT_URL"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3PublicURL       string `env:"S3_PUBLIC_URL"`
}

// CreateObjectStore returns the configured store. The local store is also
// returned separately so the caller can serve its files.
func CreateObjectStore(ctx context.Context, cfg StorageConfig) (storage.ObjectStore, *storage.LocalObjectStore) {
	switch cfg.Backend {
	case "local":
		store, err := storage.NewLocalObjectStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			log.Fatalf("Failed to create local storage: %v", err)
		}
		return store, store
	case "s3":
		store, err := storage.NewS3ObjectStore(cfg.Bucket, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 storage: %v", err)
		}
		if err := store.CreateBucket(ctx); err != nil {
			log.Fatalf("Failed to create bucket %s: %v", cfg.Bucket, err)
		}
		return store, nil
	default:
		log.Fatalf("Invalid STORAGE_BACKEND %q: must be 'local' or 's3'", cfg.Backend)
		return nil, nil
	}
}

type ProviderConfig struct {
	Provider      string `env:"LLM_PROVIDER" envDefault:"gemini"`
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`
	GeminiTitle   string `env:"GEMINI_TITLE_MODEL"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAITitle   string `env:"OPENAI_TITLE_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
}

func CreateProvider(ctx context.Context, cfg ProviderConfig) llm.Provider {
	var provider llm.Provider
	var err error

	switch cfg.Provider {
	case "gemini":
		if cfg.GoogleAPIKey == "" {
			log.Fatalf("GOOGLE_API_KEY must be set when LLM_PROVIDER is gemini")
		}
		provider, err = llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:     cfg.GoogleAPIKey,
			Model:      cfg.GeminiModel,
			TitleModel: cfg.GeminiTitle,
		})
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("OPENAI_API_KEY must be set when LLM_PROVIDER is openai")
		}
		provider, err = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			TitleModel: cfg.OpenAITitle,
			BaseURL:    cfg.OpenAIBaseURL,
		})
	default:
		err = fmt.Errorf("unknown provider %q: must be 'gemini' or 'openai'", cfg.Provider)
	}
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}

	slog.Info("using llm provider", "provider", provider.Name(), "model", provider.Model())
	return provider
}

func CreateRabbitMQPublisher(url string) messaging.Publisher {
	publisher, err := messaging.NewRabbitMQPublisher(url)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	return publisher
}

func CreateRabbitMQReceiver(url string) messaging.Receiver {
	receiver, err := messaging.NewRabbitMQReceiver(url)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	return receiver
}
