package staging

import (
	"context"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/logger"
)

// DefaultPageSize bounds list responses when the caller does not specify a
// limit. MaxPageSize is the hard ceiling regardless of what was asked for.
const (
	DefaultPageSize = 200
	MaxPageSize     = 500
)

// Service implements review-time reads and edits of staged catalog data.
type Service struct {
	repo Repository
}

// NewService creates a staging service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// resolveUpload fills in a missing upload id with the most recent active
// session so review clients can list without holding a session handle.
func (s *Service) resolveUpload(ctx context.Context, uploadID *string) (string, error) {
	if uploadID != nil && *uploadID != "" {
		return *uploadID, nil
	}
	return s.repo.LatestActiveSession(ctx)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListFamilies returns one page of staged families plus the total count for
// the resolved session. Reads are allowed in any session state.
func (s *Service) ListFamilies(ctx context.Context, q FamilyQuery) ([]domain.StagedFamily, int, error) {
	id, err := s.resolveUpload(ctx, q.UploadID)
	if err != nil {
		return nil, 0, err
	}
	q.UploadID = &id
	q.Limit, q.Offset = clampPage(q.Limit, q.Offset)
	return s.repo.ListFamilies(ctx, q)
}

// ListProducts returns one page of staged products plus the total count for
// the resolved session. Skipped products are hidden unless IncludeSkipped is
// set, which review UIs use to offer un-skip.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) ([]domain.StagedProduct, int, error) {
	id, err := s.resolveUpload(ctx, q.UploadID)
	if err != nil {
		return nil, 0, err
	}
	q.UploadID = &id
	q.Limit, q.Offset = clampPage(q.Limit, q.Offset)
	return s.repo.ListProducts(ctx, q)
}

// GetProduct returns a single staged product with its variations and images
// attached.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.StagedProduct, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Variations, err = s.repo.ListVariations(ctx, id); err != nil {
		return nil, err
	}
	if p.Images, err = s.repo.ListImages(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// checkMutable rejects mutations unless the owning session is completed.
// Parsing sessions are still being written by the runner; frozen sessions
// (imported, expired, failed) are immutable history.
func (s *Service) checkMutable(ctx context.Context, uploadID string) error {
	status, err := s.repo.SessionStatus(ctx, uploadID)
	if err != nil {
		return err
	}
	switch {
	case status == domain.SessionCompleted:
		return nil
	case status == domain.SessionParsing || status == domain.SessionUploading:
		return ErrSessionParsing
	default:
		return ErrSessionFrozen
	}
}

// UpdateProduct applies a partial edit to a staged product. Only non-nil
// patch fields change; a reviewer correcting one price does not clobber
// another reviewer's name fix.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*domain.StagedProduct, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMutable(ctx, p.UploadID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct excludes a product from import. The row survives as a
// skipped marker so it can be listed and un-skipped later, but its child
// variation and image rows are removed. Sibling products are untouched.
func (s *Service) DeleteProduct(ctx context.Context, id string) (*domain.EntityCounts, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMutable(ctx, p.UploadID); err != nil {
		return nil, err
	}
	counts, err := s.repo.SkipProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Info("product skipped", "product", id, "child_rows", counts.Variations+counts.Images)
	return counts, nil
}

// RestoreProduct clears the skipped flag so the product imports again.
// Child rows removed at skip time are not resurrected.
func (s *Service) RestoreProduct(ctx context.Context, id string) (*domain.StagedProduct, error) {
	skipped := false
	return s.UpdateProduct(ctx, id, ProductPatch{Skipped: &skipped})
}

// GetVariation returns a single staged variation.
func (s *Service) GetVariation(ctx context.Context, id string) (*domain.StagedVariation, error) {
	return s.repo.GetVariation(ctx, id)
}

// UpdateVariation applies a partial edit to a staged variation.
func (s *Service) UpdateVariation(ctx context.Context, id string, patch VariationPatch) (*domain.StagedVariation, error) {
	v, err := s.repo.GetVariation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMutable(ctx, v.UploadID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateVariation(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.repo.GetVariation(ctx, id)
}

// DeleteVariation removes a single staged variation. Unlike products there
// is no skip marker; a bad variation row is simply dropped.
func (s *Service) DeleteVariation(ctx context.Context, id string) error {
	v, err := s.repo.GetVariation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkMutable(ctx, v.UploadID); err != nil {
		return err
	}
	return s.repo.DeleteVariation(ctx, id)
}

// UpdateImageRoles replaces the role set of a staged image. Roles must all
// be known values; an empty set demotes the image to unassigned.
func (s *Service) UpdateImageRoles(ctx context.Context, id string, roles []domain.ImageRole) (*domain.StagedImage, error) {
	for _, r := range roles {
		if !domain.ValidImageRole(r) {
			return nil, ErrInvalidRole
		}
	}
	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMutable(ctx, img.UploadID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateImageRoles(ctx, id, roles); err != nil {
		return nil, err
	}
	return s.repo.GetImage(ctx, id)
}
