package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/arborline/catalog-server/internal/api"
	"github.com/arborline/catalog-server/internal/config"
	"github.com/arborline/catalog-server/internal/parser"
	"github.com/arborline/catalog-server/internal/pkg/distlock"
	"github.com/arborline/catalog-server/internal/pkg/logger"
	"github.com/arborline/catalog-server/internal/progress"
	"github.com/arborline/catalog-server/internal/repository/postgres"
	"github.com/arborline/catalog-server/internal/service/cleanup"
	"github.com/arborline/catalog-server/internal/service/importer"
	"github.com/arborline/catalog-server/internal/service/session"
	"github.com/arborline/catalog-server/internal/service/staging"
	"github.com/arborline/catalog-server/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func newFileStore(ctx context.Context, cfg config.StorageConfig) (storage.FileStore, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
	case "", "local":
		return storage.NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func main() {
	log.Println("Starting catalog ingestion server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.Database.URL == "" {
		log.Fatal("database URL is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Redis is optional; without it progress polls fall back to the session
	// row and cleanup locking falls back to PG advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v", cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.Addr)
		}
	} else {
		log.Println("Redis not configured; progress served from the database")
	}

	store, err := newFileStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Printf("Storage backend: %s", cfg.Storage.Backend)

	tracker := progress.NewTracker(redisClient)
	runner := parser.NewRunner(postgres.NewParseRepo(db), store, tracker, parser.NewPDFExtractor())

	sessions := session.NewService(postgres.NewSessionRepo(db), store, tracker, runner,
		cfg.Ingest.Retention(), cfg.Ingest.MaxUploadBytes)
	staged := staging.NewService(postgres.NewStagingRepo(db))
	imp := importer.NewService(postgres.NewImportRepo(db), cfg.Ingest.ImportTimeout())
	cleaner := cleanup.NewService(postgres.NewCleanupRepo(db), store, func() distlock.DistLock {
		return distlock.NewLock(redisClient, db, cleanup.LockKey, 10*time.Minute)
	})

	handlers := api.NewHandlers(sessions, staged, imp, cleaner, db, redisClient)
	server := api.NewServer(cfg.Server, handlers)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s:%d", host, port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Let in-flight parses finish writing their terminal status.
	runner.Wait()
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Server stopped")
}
