package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/staging"
)

// StagingRepo implements staging.Repository against PostgreSQL.
type StagingRepo struct{ db *sql.DB }

// NewStagingRepo creates a Postgres-backed staging repository.
func NewStagingRepo(db *sql.DB) *StagingRepo { return &StagingRepo{db: db} }

func (r *StagingRepo) LatestActiveSession(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM upload_sessions
		WHERE status IN ('parsing', 'completed')
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", staging.ErrNoActiveSession
	}
	if err != nil {
		return "", fmt.Errorf("latest active session: %w", err)
	}
	return id, nil
}

func (r *StagingRepo) SessionStatus(ctx context.Context, uploadID string) (domain.SessionStatus, error) {
	var status domain.SessionStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM upload_sessions WHERE id = $1
	`, uploadID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", staging.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session status: %w", err)
	}
	return status, nil
}

func (r *StagingRepo) ListFamilies(ctx context.Context, q staging.FamilyQuery) ([]domain.StagedFamily, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staged_families WHERE upload_id = $1
	`, *q.UploadID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count families: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, upload_id, name, COALESCE(description,''), source_page, created_at
		FROM staged_families
		WHERE upload_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, *q.UploadID, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty page still serializes as a JSON array.
	out := []domain.StagedFamily{}
	for rows.Next() {
		var f domain.StagedFamily
		if err := rows.Scan(&f.ID, &f.UploadID, &f.Name, &f.Description, &f.SourcePage, &f.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan family: %w", err)
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

const productColumns = `
	id, upload_id, family_id, name, COALESCE(model_number,''), COALESCE(description,''),
	COALESCE(category,''), price_cents, width_mm, height_mm, depth_mm, weight_grams,
	in_stock, requires_review, extraction_confidence, source_page, skipped, created_at`

func scanProduct(row interface{ Scan(...interface{}) error }) (*domain.StagedProduct, error) {
	p := &domain.StagedProduct{}
	err := row.Scan(
		&p.ID, &p.UploadID, &p.FamilyID, &p.Name, &p.ModelNumber, &p.Description,
		&p.Category, &p.PriceCents, &p.WidthMM, &p.HeightMM, &p.DepthMM, &p.WeightGrams,
		&p.InStock, &p.RequiresReview, &p.ExtractionConfidence, &p.SourcePage, &p.Skipped, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *StagingRepo) ListProducts(ctx context.Context, q staging.ProductQuery) ([]domain.StagedProduct, int, error) {
	where := `upload_id = $1`
	args := []interface{}{*q.UploadID}
	idx := 2

	if !q.IncludeSkipped {
		where += ` AND NOT skipped`
	}
	if q.FamilyID != nil {
		where += fmt.Sprintf(` AND family_id = $%d`, idx)
		args = append(args, *q.FamilyID)
		idx++
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staged_products WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	q2 := fmt.Sprintf(`
		SELECT %s
		FROM staged_products
		WHERE %s
		ORDER BY created_at, id
		LIMIT $%d OFFSET $%d
	`, productColumns, where, idx, idx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, q2, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	out := []domain.StagedProduct{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *StagingRepo) GetProduct(ctx context.Context, id string) (*domain.StagedProduct, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM staged_products
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, staging.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *StagingRepo) UpdateProduct(ctx context.Context, id string, u staging.ProductPatch) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.ModelNumber != nil {
		add("model_number", *u.ModelNumber)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.FamilyID != nil {
		add("family_id", *u.FamilyID)
	}
	if u.PriceCents != nil {
		add("price_cents", *u.PriceCents)
	}
	if u.WidthMM != nil {
		add("width_mm", *u.WidthMM)
	}
	if u.HeightMM != nil {
		add("height_mm", *u.HeightMM)
	}
	if u.DepthMM != nil {
		add("depth_mm", *u.DepthMM)
	}
	if u.WeightGrams != nil {
		add("weight_grams", *u.WeightGrams)
	}
	if u.InStock != nil {
		add("in_stock", *u.InStock)
	}
	if u.RequiresReview != nil {
		add("requires_review", *u.RequiresReview)
	}
	if u.Skipped != nil {
		add("skipped", *u.Skipped)
	}

	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE staged_products SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staging.ErrNotFound
	}
	return nil
}

// SkipProduct marks the product skipped and drops its child rows in one
// transaction.
func (r *StagingRepo) SkipProduct(ctx context.Context, id string) (*domain.EntityCounts, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin skip: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE staged_products SET skipped = true WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("skip product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, staging.ErrNotFound
	}

	counts := &domain.EntityCounts{}
	res, err = tx.ExecContext(ctx, `DELETE FROM staged_variations WHERE product_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete variations: %w", err)
	}
	n, _ := res.RowsAffected()
	counts.Variations = int(n)

	res, err = tx.ExecContext(ctx, `DELETE FROM staged_images WHERE product_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete images: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.Images = int(n)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit skip: %w", err)
	}
	return counts, nil
}

const variationColumns = `
	id, upload_id, product_id, sku, COALESCE(suffix,''), price_adjustment_cents, is_available, created_at`

func scanVariation(row interface{ Scan(...interface{}) error }) (*domain.StagedVariation, error) {
	v := &domain.StagedVariation{}
	err := row.Scan(&v.ID, &v.UploadID, &v.ProductID, &v.SKU, &v.Suffix,
		&v.PriceAdjustmentCents, &v.IsAvailable, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *StagingRepo) GetVariation(ctx context.Context, id string) (*domain.StagedVariation, error) {
	v, err := scanVariation(r.db.QueryRowContext(ctx, `
		SELECT `+variationColumns+`
		FROM staged_variations
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, staging.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get variation: %w", err)
	}
	return v, nil
}

func (r *StagingRepo) UpdateVariation(ctx context.Context, id string, u staging.VariationPatch) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.SKU != nil {
		add("sku", *u.SKU)
	}
	if u.Suffix != nil {
		add("suffix", *u.Suffix)
	}
	if u.PriceAdjustmentCents != nil {
		add("price_adjustment_cents", *u.PriceAdjustmentCents)
	}
	if u.IsAvailable != nil {
		add("is_available", *u.IsAvailable)
	}

	if len(sets) == 0 {
		return nil
	}

	q := fmt.Sprintf("UPDATE staged_variations SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update variation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staging.ErrNotFound
	}
	return nil
}

func (r *StagingRepo) DeleteVariation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM staged_variations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete variation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staging.ErrNotFound
	}
	return nil
}

func (r *StagingRepo) ListVariations(ctx context.Context, productID string) ([]domain.StagedVariation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variationColumns+`
		FROM staged_variations
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer rows.Close()

	var out []domain.StagedVariation
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

const imageColumns = `
	id, upload_id, product_id, path, roles, width_px, height_px, source_page, created_at`

func scanImage(row interface{ Scan(...interface{}) error }) (*domain.StagedImage, error) {
	img := &domain.StagedImage{}
	var roles pq.StringArray
	err := row.Scan(&img.ID, &img.UploadID, &img.ProductID, &img.Path, &roles,
		&img.WidthPx, &img.HeightPx, &img.SourcePage, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	img.Roles = stringsToRoles(roles)
	return img, nil
}

func (r *StagingRepo) ListImages(ctx context.Context, productID string) ([]domain.StagedImage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+imageColumns+`
		FROM staged_images
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []domain.StagedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, *img)
	}
	return out, rows.Err()
}

func (r *StagingRepo) GetImage(ctx context.Context, id string) (*domain.StagedImage, error) {
	img, err := scanImage(r.db.QueryRowContext(ctx, `
		SELECT `+imageColumns+`
		FROM staged_images
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, staging.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func joinComma(parts []string) string {
	return strings.Join(parts, ", ")
}

func (r *StagingRepo) UpdateImageRoles(ctx context.Context, id string, roles []domain.ImageRole) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE staged_images SET roles = $1 WHERE id = $2
	`, pq.Array(rolesToStrings(roles)), id)
	if err != nil {
		return fmt.Errorf("update image roles: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return staging.ErrNotFound
	}
	return nil
}
