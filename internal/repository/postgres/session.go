// Package postgres implements the service repository contracts against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/session"
)

// SessionRepo implements session.Repository against PostgreSQL.
type SessionRepo struct{ db *sql.DB }

// NewSessionRepo creates a Postgres-backed session repository.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `
	id, filename, file_path, status, max_pages, created_at, expires_at,
	pages_processed, total_pages, COALESCE(current_step,''),
	families_found, products_found, variations_found, images_extracted,
	COALESCE(error_message,''), imported_at,
	imported_families, imported_products, imported_variations, imported_images,
	import_skipped_rows`

func scanSession(row interface{ Scan(...interface{}) error }) (*domain.UploadSession, error) {
	s := &domain.UploadSession{}
	err := row.Scan(
		&s.ID, &s.Filename, &s.FilePath, &s.Status, &s.MaxPages, &s.CreatedAt, &s.ExpiresAt,
		&s.PagesProcessed, &s.TotalPages, &s.CurrentStep,
		&s.FamiliesFound, &s.ProductsFound, &s.VariationsFound, &s.ImagesExtracted,
		&s.ErrorMessage, &s.ImportedAt,
		&s.ImportedFamilies, &s.ImportedProducts, &s.ImportedVariations, &s.ImportedImages,
		&s.ImportSkippedRows,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.UploadSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_sessions
			(id, filename, file_path, status, max_pages, current_step, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.Filename, s.FilePath, s.Status, s.MaxPages, s.CurrentStep, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
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

func (r *SessionRepo) List(ctx context.Context, limit, offset int) ([]domain.UploadSession, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM upload_sessions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty page still serializes as a JSON array.
	out := []domain.UploadSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *SessionRepo) StagedImagePaths(ctx context.Context, uploadID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path FROM staged_images WHERE upload_id = $1
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("staged image paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan image path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteCascade removes the session and its staged rows, children first, in
// one transaction. Counts come back for the caller's audit trail.
func (r *SessionRepo) DeleteCascade(ctx context.Context, id string) (domain.EntityCounts, error) {
	var counts domain.EntityCounts

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	del := func(q string, dst *int) error {
		res, err := tx.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		*dst += int(n)
		return nil
	}

	if err := del(`DELETE FROM staged_images WHERE upload_id = $1`, &counts.Images); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("delete images: %w", err)
	}
	if err := del(`DELETE FROM staged_variations WHERE upload_id = $1`, &counts.Variations); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("delete variations: %w", err)
	}
	if err := del(`DELETE FROM staged_products WHERE upload_id = $1`, &counts.Products); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("delete products: %w", err)
	}
	if err := del(`DELETE FROM staged_families WHERE upload_id = $1`, &counts.Families); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("delete families: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id)
	if err != nil {
		return domain.EntityCounts{}, fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.EntityCounts{}, session.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("commit delete: %w", err)
	}
	return counts, nil
}
