// The worker runs the scheduled expiry and orphan-file sweeps. It is safe to
// run alongside the API server and alongside other worker replicas; the
// cleanup distributed lock keeps concurrent sweeps from overlapping.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/arborline/catalog-server/internal/config"
	"github.com/arborline/catalog-server/internal/pkg/distlock"
	"github.com/arborline/catalog-server/internal/pkg/logger"
	"github.com/arborline/catalog-server/internal/repository/postgres"
	"github.com/arborline/catalog-server/internal/service/cleanup"
	"github.com/arborline/catalog-server/internal/storage"
)

func main() {
	log.Println("Starting catalog cleanup worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	if cfg.Database.URL == "" {
		log.Fatal("database URL is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed: %v (falling back to PG advisory lock)", err)
			redisClient.Close()
			redisClient = nil
		}
	}

	var store storage.FileStore
	switch cfg.Storage.Backend {
	case "s3":
		store, err = storage.NewS3Store(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Region, cfg.Storage.S3Prefix)
	default:
		store, err = storage.NewLocalStore(cfg.Storage.LocalDir)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	cleaner := cleanup.NewService(postgres.NewCleanupRepo(db), store, func() distlock.DistLock {
		return distlock.NewLock(redisClient, db, cleanup.LockKey, 10*time.Minute)
	})

	interval := cfg.Ingest.CleanupInterval()
	log.Printf("Cleanup worker running (interval: %s)", interval)

	run := func() {
		res, err := cleaner.Run(ctx)
		if errors.Is(err, cleanup.ErrAlreadyRunning) {
			log.Println("Sweep skipped: another process holds the cleanup lock")
			return
		}
		if err != nil {
			log.Printf("Sweep failed: %v", err)
			return
		}
		log.Printf("Sweep done: expired=%d rows=%d files=%d orphans=%d",
			res.ExpiredUploads, res.Expired.Total(), res.FilesDeleted, res.OrphansDeleted)
	}

	// First sweep immediately so a restarted worker doesn't wait a full
	// interval with overdue sessions piling up.
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			run()
		case <-quit:
			log.Println("Shutting down worker...")
			cancel()
			if redisClient != nil {
				redisClient.Close()
			}
			log.Println("Worker stopped")
			return
		}
	}
}
