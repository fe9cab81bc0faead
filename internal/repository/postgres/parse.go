package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/parser"
	"github.com/arborline/catalog-server/internal/service/session"
)

// ParseRepo implements parser.Store against PostgreSQL. Status flips are
// conditional on the current status, so a stale runner can never resurrect
// a session that already reached a terminal state.
type ParseRepo struct{ db *sql.DB }

// NewParseRepo creates a Postgres-backed parse store.
func NewParseRepo(db *sql.DB) *ParseRepo { return &ParseRepo{db: db} }

func (r *ParseRepo) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM upload_sessions
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *ParseRepo) MarkParsing(ctx context.Context, id string, totalPages int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = 'parsing', total_pages = $2, current_step = 'scanning pages'
		WHERE id = $1 AND status = 'uploading'
	`, id, totalPages)
	if err != nil {
		return fmt.Errorf("mark parsing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is not in uploading state", id)
	}
	return nil
}

// InsertBatch writes one page worth of staged rows using multi-row inserts.
func (r *ParseRepo) InsertBatch(ctx context.Context, b parser.Batch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, f := range b.Families {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staged_families (id, upload_id, name, description, source_page, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, f.ID, f.UploadID, f.Name, f.Description, f.SourcePage, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert family: %w", err)
		}
	}

	if len(b.Products) > 0 {
		var (
			values []string
			args   []interface{}
		)
		for i, p := range b.Products {
			base := i * 17
			values = append(values, placeholders(base, 17))
			args = append(args,
				p.ID, p.UploadID, p.FamilyID, p.Name, p.ModelNumber, p.Description,
				p.Category, p.PriceCents, p.WidthMM, p.HeightMM, p.DepthMM, p.WeightGrams,
				p.InStock, p.RequiresReview, p.ExtractionConfidence, p.SourcePage, p.CreatedAt)
		}
		q := `
			INSERT INTO staged_products
				(id, upload_id, family_id, name, model_number, description,
				 category, price_cents, width_mm, height_mm, depth_mm, weight_grams,
				 in_stock, requires_review, extraction_confidence, source_page, created_at)
			VALUES ` + strings.Join(values, ", ")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert products: %w", err)
		}
	}

	if len(b.Variations) > 0 {
		var (
			values []string
			args   []interface{}
		)
		for i, v := range b.Variations {
			base := i * 8
			values = append(values, placeholders(base, 8))
			args = append(args,
				v.ID, v.UploadID, v.ProductID, v.SKU, v.Suffix,
				v.PriceAdjustmentCents, v.IsAvailable, v.CreatedAt)
		}
		q := `
			INSERT INTO staged_variations
				(id, upload_id, product_id, sku, suffix, price_adjustment_cents, is_available, created_at)
			VALUES ` + strings.Join(values, ", ")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert variations: %w", err)
		}
	}

	for _, img := range b.Images {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staged_images
				(id, upload_id, product_id, path, roles, width_px, height_px, source_page, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, img.ID, img.UploadID, img.ProductID, img.Path, pq.Array(rolesToStrings(img.Roles)),
			img.WidthPx, img.HeightPx, img.SourcePage, img.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// SaveProgress mirrors the hot snapshot into the session row. Greatest-value
// updates keep counters monotonic even if a stale write slips in.
func (r *ParseRepo) SaveProgress(ctx context.Context, p *domain.ParseProgress) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET pages_processed  = GREATEST(pages_processed, $2),
		    total_pages      = GREATEST(total_pages, $3),
		    current_step     = $4,
		    families_found   = GREATEST(families_found, $5),
		    products_found   = GREATEST(products_found, $6),
		    variations_found = GREATEST(variations_found, $7),
		    images_extracted = GREATEST(images_extracted, $8)
		WHERE id = $1 AND status = 'parsing'
	`, p.SessionID, p.PagesProcessed, p.TotalPages, p.CurrentStep,
		p.FamiliesFound, p.ProductsFound, p.VariationsFound, p.ImagesExtracted)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (r *ParseRepo) MarkCompleted(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = 'completed', current_step = 'done'
		WHERE id = $1 AND status = 'parsing'
	`, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is not in parsing state", id)
	}
	return nil
}

func (r *ParseRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = 'failed', error_message = $2, current_step = 'failed'
		WHERE id = $1 AND status IN ('uploading', 'parsing')
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// placeholders renders ($n, $n+1, ...) for multi-row inserts.
func placeholders(base, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func rolesToStrings(roles []domain.ImageRole) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(ss []string) []domain.ImageRole {
	out := make([]domain.ImageRole, len(ss))
	for i, s := range ss {
		out[i] = domain.ImageRole(s)
	}
	return out
}
