package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/importer"
)

// ImportRepo implements importer.Repository against PostgreSQL. The staged
// ids are reused as production ids, which keeps family links intact without
// an id translation table.
type ImportRepo struct{ db *sql.DB }

// NewImportRepo creates a Postgres-backed import repository.
func NewImportRepo(db *sql.DB) *ImportRepo { return &ImportRepo{db: db} }

func (r *ImportRepo) SessionStatus(ctx context.Context, uploadID string) (domain.SessionStatus, error) {
	var status domain.SessionStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM upload_sessions WHERE id = $1
	`, uploadID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", importer.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session status: %w", err)
	}
	return status, nil
}

// ImportTx promotes the session's staged rows in one transaction. The status
// flip runs first and is conditional on completed, so whichever of two
// concurrent imports (or an import racing the expiry sweep) commits first
// wins and the other writes nothing.
func (r *ImportRepo) ImportTx(ctx context.Context, uploadID string) (*domain.ImportResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = 'imported', imported_at = NOW()
		WHERE id = $1 AND status = 'completed'
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("flip session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		status, err := r.SessionStatus(ctx, uploadID)
		if err != nil {
			return nil, err
		}
		if status == domain.SessionImported {
			return nil, importer.ErrAlreadyImported
		}
		return nil, importer.ErrNotReady
	}

	result := &domain.ImportResult{UploadID: uploadID}

	count := func(q string, dst *int) error {
		res, err := tx.ExecContext(ctx, q, uploadID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		*dst = int(n)
		return nil
	}

	err = count(`
		INSERT INTO catalog_families (id, source_upload_id, name, description, created_at)
		SELECT id, upload_id, name, description, NOW()
		FROM staged_families
		WHERE upload_id = $1
	`, &result.Imported.Families)
	if err != nil {
		return nil, fmt.Errorf("import families: %w", err)
	}

	err = count(`
		INSERT INTO catalog_products
			(id, source_upload_id, family_id, name, model_number, description,
			 category, price_cents, width_mm, height_mm, depth_mm, weight_grams,
			 in_stock, created_at)
		SELECT id, upload_id, family_id, name, model_number, description,
		       category, price_cents, width_mm, height_mm, depth_mm, weight_grams,
		       in_stock, NOW()
		FROM staged_products
		WHERE upload_id = $1 AND NOT skipped
	`, &result.Imported.Products)
	if err != nil {
		return nil, fmt.Errorf("import products: %w", err)
	}

	err = count(`
		INSERT INTO catalog_variations
			(id, product_id, sku, suffix, price_adjustment_cents, is_available, created_at)
		SELECT v.id, v.product_id, v.sku, v.suffix, v.price_adjustment_cents, v.is_available, NOW()
		FROM staged_variations v
		JOIN staged_products p ON p.id = v.product_id AND NOT p.skipped
		WHERE v.upload_id = $1
	`, &result.Imported.Variations)
	if err != nil {
		return nil, fmt.Errorf("import variations: %w", err)
	}

	err = count(`
		INSERT INTO catalog_images
			(id, product_id, path, roles, width_px, height_px, created_at)
		SELECT i.id, i.product_id, i.path, i.roles, i.width_px, i.height_px, NOW()
		FROM staged_images i
		JOIN staged_products p ON p.id = i.product_id AND NOT p.skipped
		WHERE i.upload_id = $1
	`, &result.Imported.Images)
	if err != nil {
		return nil, fmt.Errorf("import images: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staged_products WHERE upload_id = $1 AND skipped
	`, uploadID).Scan(&result.SkippedRows)
	if err != nil {
		return nil, fmt.Errorf("count skipped: %w", err)
	}

	// Persist the summary on the session row; the result returned here is
	// one-shot, the row is what operators audit later.
	_, err = tx.ExecContext(ctx, `
		UPDATE upload_sessions
		SET imported_families = $2, imported_products = $3,
		    imported_variations = $4, imported_images = $5,
		    import_skipped_rows = $6
		WHERE id = $1
	`, uploadID, result.Imported.Families, result.Imported.Products,
		result.Imported.Variations, result.Imported.Images, result.SkippedRows)
	if err != nil {
		return nil, fmt.Errorf("write import summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	result.CompletedAt = time.Now().UTC()
	return result, nil
}
