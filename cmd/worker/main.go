package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docchat-backend/cmd"
	"docchat-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	cmd.StorageConfig

	RabbitMQURL    string `env:"RABBITMQ_URL,notEmpty,required"`
	CleanupWorkers int    `env:"CLEANUP_WORKERS" envDefault:"4"`
}

func main() {
	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	slog.Info("starting cleanup worker", "storage", cfg.Backend, "workers", cfg.CleanupWorkers)

	store, _ := cmd.CreateObjectStore(context.Background(), cfg.StorageConfig)

	receiver := cmd.CreateRabbitMQReceiver(cfg.RabbitMQURL)
	defer receiver.Close()

	worker := messaging.NewCleanupWorker(store, receiver, cfg.CleanupWorkers)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutdown signal received, stopping worker")
		worker.Stop()
	}()

	worker.Start()

	slog.Info("worker process stopped")
}
