package domain

import "time"

// SessionStatus enumerates the lifecycle states of an upload session.
type SessionStatus string

const (
	SessionUploading SessionStatus = "uploading"
	SessionParsing   SessionStatus = "parsing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionImported  SessionStatus = "imported"
	SessionExpired   SessionStatus = "expired"
)

// UploadSession is the unit of work spanning file submission through parse
// completion and (optionally) production import.
type UploadSession struct {
	ID        string        `json:"id" db:"id"`
	Filename  string        `json:"filename" db:"filename"`
	FilePath  string        `json:"file_path" db:"file_path"`
	Status    SessionStatus `json:"status" db:"status"`
	MaxPages  int           `json:"max_pages,omitempty" db:"max_pages"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	ExpiresAt time.Time     `json:"expires_at" db:"expires_at"`

	// Progress fields, written by the parse runner while status is parsing.
	// Monotonically non-decreasing until a terminal status is reached.
	PagesProcessed  int    `json:"pages_processed" db:"pages_processed"`
	TotalPages      int    `json:"total_pages" db:"total_pages"`
	CurrentStep     string `json:"current_step" db:"current_step"`
	FamiliesFound   int    `json:"families_found" db:"families_found"`
	ProductsFound   int    `json:"products_found" db:"products_found"`
	VariationsFound int    `json:"variations_found" db:"variations_found"`
	ImagesExtracted int    `json:"images_extracted" db:"images_extracted"`

	// ErrorMessage is set only when Status is failed.
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	// Import summary, written in the same transaction that flips the
	// session to imported. Survives for operator audit after the ephemeral
	// import result is gone.
	ImportedAt         *time.Time `json:"imported_at,omitempty" db:"imported_at"`
	ImportedFamilies   int        `json:"imported_families,omitempty" db:"imported_families"`
	ImportedProducts   int        `json:"imported_products,omitempty" db:"imported_products"`
	ImportedVariations int        `json:"imported_variations,omitempty" db:"imported_variations"`
	ImportedImages     int        `json:"imported_images,omitempty" db:"imported_images"`
	ImportSkippedRows  int        `json:"import_skipped_rows,omitempty" db:"import_skipped_rows"`
}

// IsTerminal returns true once the parse worker can no longer mutate the
// session. Completed sessions are terminal for parsing but still reviewable.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionImported, SessionExpired:
		return true
	}
	return false
}

// IsFrozen returns true when staged rows belonging to the session may no
// longer be mutated by reviewers.
func (s SessionStatus) IsFrozen() bool {
	return s == SessionImported || s == SessionExpired
}

// ParseProgress is the hot progress snapshot the parse runner publishes while
// a session is parsing. It mirrors the progress columns on UploadSession.
type ParseProgress struct {
	SessionID       string    `json:"session_id"`
	PagesProcessed  int       `json:"pages_processed"`
	TotalPages      int       `json:"total_pages"`
	CurrentStep     string    `json:"current_step"`
	FamiliesFound   int       `json:"families_found"`
	ProductsFound   int       `json:"products_found"`
	VariationsFound int       `json:"variations_found"`
	ImagesExtracted int       `json:"images_extracted"`
	UpdatedAt       time.Time `json:"updated_at"`
}
