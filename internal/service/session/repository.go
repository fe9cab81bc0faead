package session

import (
	"context"

	"github.com/arborline/catalog-server/internal/domain"
)

// Repository defines the data access contract for upload sessions.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s *domain.UploadSession) error

	// Get returns a single session. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.UploadSession, error)

	// List returns recent sessions ordered by created_at DESC, with total.
	List(ctx context.Context, limit, offset int) ([]domain.UploadSession, int, error)

	// StagedImagePaths returns the stored file keys of all staged images
	// belonging to the session, so the caller can remove them alongside
	// the session.
	StagedImagePaths(ctx context.Context, uploadID string) ([]string, error)

	// DeleteCascade removes the session row and all staged rows (children
	// first) in one transaction and returns per-entity delete counts.
	// Returns ErrNotFound if the session does not exist.
	DeleteCascade(ctx context.Context, id string) (domain.EntityCounts, error)
}

// ProgressReader reads hot parse-progress snapshots. Satisfied by
// progress.Tracker.
type ProgressReader interface {
	Get(ctx context.Context, sessionID string) (*domain.ParseProgress, error)
	Clear(ctx context.Context, sessionID string) error
}

// ParseLauncher hands a freshly created session to the background parse
// runner. Launch must not block on the parse itself.
type ParseLauncher interface {
	Launch(sessionID string)
}
