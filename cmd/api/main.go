package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docchat-backend/cmd"
	"docchat-backend/internal/api"
	"docchat-backend/internal/chat"
	"docchat-backend/internal/messaging"
	"docchat-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIConfig struct {
	cmd.DatabaseConfig
	cmd.StorageConfig
	cmd.ProviderConfig

	Port        int    `env:"PORT" envDefault:"8000"`
	CorsOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	// Without RABBITMQ_URL cleanup tasks run in process.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	MaxFileSizeMB          int64 `env:"MAX_FILE_SIZE_MB" envDefault:"25"`
	MaxActiveConversations int   `env:"MAX_ACTIVE_CONVERSATIONS" envDefault:"1000"`
	CleanupWorkers         int   `env:"CLEANUP_WORKERS" envDefault:"4"`
}

func corsOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func main() {
	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	slog.Info("starting api server", "port", cfg.Port, "storage", cfg.Backend, "provider", cfg.Provider)

	ctx := context.Background()
	maxUploadBytes := cfg.MaxFileSizeMB * 1024 * 1024

	db := cmd.CreateDatabase(cfg.DatabaseConfig)
	store, localStore := cmd.CreateObjectStore(ctx, cfg.StorageConfig)
	provider := cmd.CreateProvider(ctx, cfg.ProviderConfig)

	var publisher messaging.Publisher
	var worker *messaging.CleanupWorker
	if cfg.RabbitMQURL != "" {
		publisher = cmd.CreateRabbitMQPublisher(cfg.RabbitMQURL)
	} else {
		queue := messaging.NewInMemoryQueue()
		publisher = queue
		worker = messaging.NewCleanupWorker(store, queue, cfg.CleanupWorkers)
	}
	defer publisher.Close()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CorsOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	if localStore != nil {
		r.Handle(storage.FilesRoute+"*", localStore.Handler())
	}

	// The socket streams for as long as the model does, so only the REST
	// routes get a request timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		api.NewBackendService(db, store, publisher, maxUploadBytes).AddRoutes(r)
	})

	chatService := chat.NewService(db, store, provider, cfg.MaxActiveConversations, maxUploadBytes)
	api.NewChatService(chatService).AddRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	if worker != nil {
		slog.Info("starting in-process cleanup worker")
		go worker.Start()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		if worker != nil {
			slog.Info("shutting down worker")
			worker.Stop()
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
