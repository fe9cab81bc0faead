package domain

import "time"

// StagedFamily is a product family extracted from a catalog, pending review.
type StagedFamily struct {
	ID          string    `json:"id" db:"id"`
	UploadID    string    `json:"upload_id" db:"upload_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	SourcePage  int       `json:"source_page" db:"source_page"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// StagedProduct is an extracted product awaiting review. Monetary fields are
// integer minor currency units (cents); never floating point.
type StagedProduct struct {
	ID          string  `json:"id" db:"id"`
	UploadID    string  `json:"upload_id" db:"upload_id"`
	FamilyID    *string `json:"family_id,omitempty" db:"family_id"`
	Name        string  `json:"name" db:"name"`
	ModelNumber string  `json:"model_number" db:"model_number"`
	Description string  `json:"description" db:"description"`
	Category    string  `json:"category" db:"category"`
	PriceCents  int64   `json:"price_cents" db:"price_cents"`
	WidthMM     int     `json:"width_mm" db:"width_mm"`
	HeightMM    int     `json:"height_mm" db:"height_mm"`
	DepthMM     int     `json:"depth_mm" db:"depth_mm"`
	WeightGrams int     `json:"weight_grams" db:"weight_grams"`
	InStock     bool    `json:"in_stock" db:"in_stock"`

	// Pipeline metadata.
	RequiresReview       bool `json:"requires_review" db:"requires_review"`
	ExtractionConfidence int  `json:"extraction_confidence" db:"extraction_confidence"`
	SourcePage           int  `json:"source_page" db:"source_page"`

	// Skipped products are excluded from import but keep their rows so the
	// reviewer can un-skip them. Hard deletion only happens with the session.
	Skipped bool `json:"skipped" db:"skipped"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Child rows, attached on single-product reads only. Not columns.
	Variations []StagedVariation `json:"variations,omitempty" db:"-"`
	Images     []StagedImage     `json:"images,omitempty" db:"-"`
}

// StagedVariation is a SKU-level variant of a staged product.
// PriceAdjustmentCents is signed: negative means cheaper than the base price.
type StagedVariation struct {
	ID                   string    `json:"id" db:"id"`
	UploadID             string    `json:"upload_id" db:"upload_id"`
	ProductID            string    `json:"product_id" db:"product_id"`
	SKU                  string    `json:"sku" db:"sku"`
	Suffix               string    `json:"suffix" db:"suffix"`
	PriceAdjustmentCents int64     `json:"price_adjustment_cents" db:"price_adjustment_cents"`
	IsAvailable          bool      `json:"is_available" db:"is_available"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// ImageRole tags how a product image is used on the storefront.
// A single image may hold several roles at once, so roles are a set.
type ImageRole string

const (
	RolePrimary ImageRole = "primary"
	RoleHover   ImageRole = "hover"
	RoleGallery ImageRole = "gallery"
)

// ValidImageRole reports whether r is one of the known role tags.
func ValidImageRole(r ImageRole) bool {
	switch r {
	case RolePrimary, RoleHover, RoleGallery:
		return true
	}
	return false
}

// StagedImage is an image extracted from the catalog for a staged product.
type StagedImage struct {
	ID         string      `json:"id" db:"id"`
	UploadID   string      `json:"upload_id" db:"upload_id"`
	ProductID  string      `json:"product_id" db:"product_id"`
	Path       string      `json:"path" db:"path"`
	Roles      []ImageRole `json:"roles" db:"roles"`
	WidthPx    int         `json:"width_px" db:"width_px"`
	HeightPx   int         `json:"height_px" db:"height_px"`
	SourcePage int         `json:"source_page" db:"source_page"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// HasRole reports whether the image carries the given role tag.
func (i *StagedImage) HasRole(r ImageRole) bool {
	for _, have := range i.Roles {
		if have == r {
			return true
		}
	}
	return false
}
