package domain

import "time"

// EntityCounts holds per-entity-type row counts. Used both for import results
// and for delete/expiry accounting.
type EntityCounts struct {
	Families   int `json:"families"`
	Products   int `json:"products"`
	Variations int `json:"variations"`
	Images     int `json:"images"`
}

// Total returns the sum across all entity types.
func (c EntityCounts) Total() int {
	return c.Families + c.Products + c.Variations + c.Images
}

// Add accumulates another count set into c.
func (c *EntityCounts) Add(o EntityCounts) {
	c.Families += o.Families
	c.Products += o.Products
	c.Variations += o.Variations
	c.Images += o.Images
}

// ImportResult reports what the production importer wrote. It is returned
// once per import call and not persisted as an entity; the session row keeps
// a summary for later audit.
type ImportResult struct {
	UploadID    string       `json:"upload_id"`
	Imported    EntityCounts `json:"imported"`
	SkippedRows int          `json:"skipped_rows"`
	CompletedAt time.Time    `json:"completed_at"`
}

// DeleteResult reports what an explicit session delete removed.
type DeleteResult struct {
	UploadID     string       `json:"upload_id"`
	Deleted      EntityCounts `json:"deleted"`
	FilesDeleted int          `json:"files_deleted"`
}

// CleanupResult combines the two independent cleanup sweeps.
type CleanupResult struct {
	ExpiredUploads int          `json:"expired_uploads"`
	Expired        EntityCounts `json:"expired"`
	FilesDeleted   int          `json:"files_deleted"`
	OrphansScanned int          `json:"orphans_scanned"`
	OrphansDeleted int          `json:"orphans_deleted"`
}
