package staging

import (
	"context"

	"github.com/arborline/catalog-server/internal/domain"
)

// ProductQuery controls filtering and pagination for staged product lists.
// A nil UploadID means "resolve the most recent active session".
type ProductQuery struct {
	UploadID       *string
	FamilyID       *string
	IncludeSkipped bool
	Limit          int
	Offset         int
}

// FamilyQuery mirrors ProductQuery for staged families.
type FamilyQuery struct {
	UploadID *string
	Limit    int
	Offset   int
}

// ProductPatch holds the mutable fields of a staged product. Nil fields are
// left untouched (partial merge, not replacement). Money is minor units.
type ProductPatch struct {
	Name           *string `json:"name,omitempty"`
	ModelNumber    *string `json:"model_number,omitempty"`
	Description    *string `json:"description,omitempty"`
	Category       *string `json:"category,omitempty"`
	FamilyID       *string `json:"family_id,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	WidthMM        *int    `json:"width_mm,omitempty"`
	HeightMM       *int    `json:"height_mm,omitempty"`
	DepthMM        *int    `json:"depth_mm,omitempty"`
	WeightGrams    *int    `json:"weight_grams,omitempty"`
	InStock        *bool   `json:"in_stock,omitempty"`
	RequiresReview *bool   `json:"requires_review,omitempty"`
	Skipped        *bool   `json:"skipped,omitempty"`
}

// VariationPatch holds the mutable fields of a staged variation.
type VariationPatch struct {
	SKU                  *string `json:"sku,omitempty"`
	Suffix               *string `json:"suffix,omitempty"`
	PriceAdjustmentCents *int64  `json:"price_adjustment_cents,omitempty"`
	IsAvailable          *bool   `json:"is_available,omitempty"`
}

// Repository defines the data access contract for staged entities.
// List ordering must be stable under concurrent writes to other rows:
// implementations order by (created_at, id), never by an unstable key.
type Repository interface {
	// LatestActiveSession returns the id of the most recent session whose
	// status is parsing or completed. Returns ErrNoActiveSession when no
	// such session exists.
	LatestActiveSession(ctx context.Context) (string, error)

	// SessionStatus returns the status of the given session.
	// Returns ErrNotFound for unknown sessions.
	SessionStatus(ctx context.Context, uploadID string) (domain.SessionStatus, error)

	ListFamilies(ctx context.Context, q FamilyQuery) ([]domain.StagedFamily, int, error)
	ListProducts(ctx context.Context, q ProductQuery) ([]domain.StagedProduct, int, error)

	GetProduct(ctx context.Context, id string) (*domain.StagedProduct, error)
	UpdateProduct(ctx context.Context, id string, p ProductPatch) error

	// SkipProduct marks the product as skipped and removes its child
	// variation/image rows. Sibling products are unaffected.
	SkipProduct(ctx context.Context, id string) (*domain.EntityCounts, error)

	GetVariation(ctx context.Context, id string) (*domain.StagedVariation, error)
	UpdateVariation(ctx context.Context, id string, p VariationPatch) error
	DeleteVariation(ctx context.Context, id string) error

	ListVariations(ctx context.Context, productID string) ([]domain.StagedVariation, error)
	ListImages(ctx context.Context, productID string) ([]domain.StagedImage, error)

	GetImage(ctx context.Context, id string) (*domain.StagedImage, error)
	UpdateImageRoles(ctx context.Context, id string, roles []domain.ImageRole) error
}
