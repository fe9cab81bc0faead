package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/arborline/catalog-server/internal/domain"
)

// ErrNotExpirable reports that a session lost eligibility between listing and
// the conditional flip, typically because an import committed in between.
var ErrNotExpirable = errors.New("session no longer eligible for expiry")

// ExpiredSession is one overdue session with the file keys it owns.
type ExpiredSession struct {
	ID         string
	FilePath   string
	ImagePaths []string
}

// Repository is the data access contract for cleanup runs.
type Repository interface {
	// ListExpired returns sessions with expires_at at or before cutoff whose
	// status is neither imported nor expired, together with their file keys.
	ListExpired(ctx context.Context, cutoff time.Time) ([]ExpiredSession, error)

	// ExpireSession flips the session to expired and deletes its staged rows
	// in one transaction. The flip is conditional on the status still being
	// eligible; a session imported since listing returns ErrNotExpirable and
	// nothing is touched.
	ExpireSession(ctx context.Context, id string) (domain.EntityCounts, error)

	// ReferencedKeys returns every file key any session or staged image row
	// still points at.
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}
