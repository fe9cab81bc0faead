package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/distlock"
	"github.com/arborline/catalog-server/internal/pkg/logger"
	"github.com/arborline/catalog-server/internal/storage"
)

// LockKey names the distributed lock serializing cleanup runs.
const LockKey = "ingest:cleanup:run"

// ErrAlreadyRunning is returned when another process holds the cleanup lock.
var ErrAlreadyRunning = errors.New("cleanup already running elsewhere")

// LockFactory builds a fresh lock per run. Satisfied by a closure over
// distlock.NewLock so tests can substitute an in-process lock.
type LockFactory func() distlock.DistLock

// Service runs expiry and orphan sweeps.
type Service struct {
	repo    Repository
	store   storage.FileStore
	newLock LockFactory
}

// NewService creates a cleanup service. newLock may be nil, in which case
// runs are not serialized (single-process deployments and tests).
func NewService(repo Repository, store storage.FileStore, newLock LockFactory) *Service {
	return &Service{repo: repo, store: store, newLock: newLock}
}

// Run executes one cleanup pass under the distributed lock. The two sweeps
// are independent: a failing expiry sweep does not stop the orphan sweep,
// and each session inside the expiry sweep fails on its own. Running twice
// in a row is harmless; the second pass finds nothing to do.
func (s *Service) Run(ctx context.Context) (*domain.CleanupResult, error) {
	if s.newLock != nil {
		lock := s.newLock()
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire cleanup lock: %w", err)
		}
		if !acquired {
			return nil, ErrAlreadyRunning
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("cleanup lock release failed", "error", err)
			}
		}()
	}

	result := &domain.CleanupResult{}

	if err := s.sweepExpired(ctx, result); err != nil {
		logger.Error("expiry sweep failed", "error", err)
	}
	if err := s.sweepOrphans(ctx, result); err != nil {
		logger.Error("orphan sweep failed", "error", err)
	}

	logger.Info("cleanup run complete",
		"expired", result.ExpiredUploads, "rows", result.Expired.Total(),
		"files", result.FilesDeleted,
		"orphans_deleted", result.OrphansDeleted, "orphans_scanned", result.OrphansScanned)
	return result, nil
}

// sweepExpired expires every overdue session and removes its rows and files.
func (s *Service) sweepExpired(ctx context.Context, result *domain.CleanupResult) error {
	sessions, err := s.repo.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list expired: %w", err)
	}

	for _, sess := range sessions {
		counts, err := s.repo.ExpireSession(ctx, sess.ID)
		if errors.Is(err, ErrNotExpirable) {
			// Imported since we listed it; its files now belong to history.
			continue
		}
		if err != nil {
			logger.Error("expire session failed", "session", sess.ID, "error", err)
			continue
		}
		result.ExpiredUploads++
		result.Expired.Add(counts)

		for _, key := range append(sess.ImagePaths, sess.FilePath) {
			if key == "" {
				continue
			}
			if err := s.store.Delete(ctx, key); err != nil {
				// The orphan sweep will catch it next run.
				logger.Warn("stored file delete failed", "key", key, "error", err)
				continue
			}
			result.FilesDeleted++
		}
	}
	return nil
}

// sweepOrphans deletes stored files no database row references.
func (s *Service) sweepOrphans(ctx context.Context, result *domain.CleanupResult) error {
	referenced, err := s.repo.ReferencedKeys(ctx)
	if err != nil {
		return fmt.Errorf("referenced keys: %w", err)
	}

	for _, prefix := range []string{"uploads/", "images/"} {
		keys, err := s.store.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, key := range keys {
			result.OrphansScanned++
			if _, ok := referenced[key]; ok {
				continue
			}
			if err := s.store.Delete(ctx, key); err != nil {
				logger.Warn("orphan delete failed", "key", key, "error", err)
				continue
			}
			result.OrphansDeleted++
		}
	}
	return nil
}
