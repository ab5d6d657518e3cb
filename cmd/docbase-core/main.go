package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/docbase-core/internal/adapters/driven/connectors"
	"github.com/custodia-labs/docbase-core/internal/adapters/driven/connectors/githubdocs"
	"github.com/custodia-labs/docbase-core/internal/adapters/driven/memdb"
	"github.com/custodia-labs/docbase-core/internal/adapters/driven/postgres"
	redisqueue "github.com/custodia-labs/docbase-core/internal/adapters/driven/queue/redis"
	storequeue "github.com/custodia-labs/docbase-core/internal/adapters/driven/queue/store"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
	"github.com/custodia-labs/docbase-core/internal/core/services"
	"github.com/custodia-labs/docbase-core/internal/sandbox"
	"github.com/custodia-labs/docbase-core/internal/worker"
)

var version = "dev"

func main() {
	log.Printf("docbase-core %s starting", version)

	// Configuration from environment
	databaseURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	secretKey := getEnv("SECRET_KEY", "")
	scriptTimeout := time.Duration(getEnvInt("SCRIPT_TIMEOUT_MS", 2000)) * time.Millisecond

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Transactional store (PostgreSQL if configured, in-memory otherwise) =====
	var tx driven.TxManager
	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		dbConfig := postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		}
		db, err := postgres.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}

		if secretKey == "" {
			log.Fatal("SECRET_KEY is required when DATABASE_URL is set (credentials are encrypted at rest)")
		}
		enc, err := postgres.NewSecretEncryptorFromSecret(secretKey)
		if err != nil {
			log.Fatalf("Failed to create secret encryptor: %v", err)
		}
		tx, err = postgres.NewTxManager(db, enc)
		if err != nil {
			log.Fatalf("Failed to create transaction manager: %v", err)
		}
		log.Println("Using PostgreSQL store")
	} else {
		db, err := memdb.New()
		if err != nil {
			log.Fatalf("Failed to create in-memory store: %v", err)
		}
		tx = db
		log.Println("Using in-memory store (set DATABASE_URL for persistence)")
	}

	// ===== Job queue (Redis if configured, repository-backed otherwise) =====
	var jobQueue driven.JobQueue
	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		jobQueue, err = redisqueue.NewQueue(redisClient)
		if err != nil {
			log.Fatalf("Failed to create job queue: %v", err)
		}
		log.Println("Using Redis job queue")
	} else {
		jobQueue = storequeue.NewQueue(tx)
		log.Println("Using repository-backed job queue")
	}
	defer jobQueue.Close()

	// ===== Connectors =====
	registry := connectors.NewRegistry()
	if clientID := getEnv("GITHUB_CLIENT_ID", ""); clientID != "" {
		registry.Register(githubdocs.New(githubdocs.Config{
			ClientID:     clientID,
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		}))
		log.Println("Registered githubdocs connector")
	}

	// ===== Script engine =====
	engine := sandbox.New(scriptTimeout)

	// ===== Services (core business logic) =====
	// The binary runs the background half of the platform: embedders drive
	// the collection/document/file/linker services in-process through their
	// driving ports.
	logger := slog.Default()
	syncService := services.NewSyncService(services.SyncServiceConfig{
		Tx:         tx,
		Engine:     engine,
		Connectors: registry,
		Logger:     logger,
	})

	// ===== Worker =====
	w := worker.NewWorker(worker.WorkerConfig{
		Queue:         jobQueue,
		SyncService:   syncService,
		Logger:        logger,
		Concurrency:   getEnvInt("WORKER_CONCURRENCY", 2),
		PollInterval:  time.Duration(getEnvInt("WORKER_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		PurgeInterval: time.Duration(getEnvInt("JOB_PURGE_INTERVAL_SEC", 3600)) * time.Second,
		PurgeAge:      time.Duration(getEnvInt("JOB_PURGE_AGE_SEC", 86400)) * time.Second,
	})
	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	log.Println("Worker started, processing jobs...")

	<-ctx.Done()

	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
