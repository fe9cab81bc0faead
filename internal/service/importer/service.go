package importer

import (
	"context"
	"time"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/logger"
)

// Repository is the transactional contract the importer needs.
type Repository interface {
	// SessionStatus returns the session's current status, or ErrNotFound.
	SessionStatus(ctx context.Context, uploadID string) (domain.SessionStatus, error)

	// ImportTx copies all non-skipped staged rows into the production tables
	// and flips the session from completed to imported, all in a single
	// transaction. The flip is a conditional update on status, so a
	// concurrent import or cleanup of the same session makes exactly one
	// winner; the loser gets ErrAlreadyImported (or ErrNotReady) and nothing
	// is written.
	ImportTx(ctx context.Context, uploadID string) (*domain.ImportResult, error)
}

// Service runs production imports.
type Service struct {
	repo    Repository
	timeout time.Duration
}

// NewService creates an import service. timeout bounds the whole transaction
// (0 means 5 minutes).
func NewService(repo Repository, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Service{repo: repo, timeout: timeout}
}

// Import promotes the session's staged data to production. The status
// pre-check gives friendly errors for the common cases; the transactional
// flip inside ImportTx is what actually guarantees single-import semantics
// under races.
func (s *Service) Import(ctx context.Context, uploadID string) (*domain.ImportResult, error) {
	status, err := s.repo.SessionStatus(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	switch status {
	case domain.SessionCompleted:
		// Importable.
	case domain.SessionImported:
		return nil, ErrAlreadyImported
	default:
		return nil, ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.repo.ImportTx(ctx, uploadID)
	if err != nil {
		logger.Error("import failed", "session", uploadID, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		return nil, err
	}

	logger.Info("import committed", "session", uploadID,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"families", result.Imported.Families, "products", result.Imported.Products,
		"variations", result.Imported.Variations, "images", result.Imported.Images,
		"skipped", result.SkippedRows)
	return result, nil
}
