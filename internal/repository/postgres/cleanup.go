package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/cleanup"
)

// CleanupRepo implements cleanup.Repository against PostgreSQL.
type CleanupRepo struct{ db *sql.DB }

// NewCleanupRepo creates a Postgres-backed cleanup repository.
func NewCleanupRepo(db *sql.DB) *CleanupRepo { return &CleanupRepo{db: db} }

func (r *CleanupRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]cleanup.ExpiredSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.file_path,
		       COALESCE(array_agg(i.path) FILTER (WHERE i.path IS NOT NULL), '{}')
		FROM upload_sessions s
		LEFT JOIN staged_images i ON i.upload_id = s.id
		WHERE s.expires_at <= $1 AND s.status NOT IN ('imported', 'expired')
		GROUP BY s.id, s.file_path
		ORDER BY s.expires_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []cleanup.ExpiredSession
	for rows.Next() {
		var (
			s     cleanup.ExpiredSession
			paths pq.StringArray
		)
		if err := rows.Scan(&s.ID, &s.FilePath, &paths); err != nil {
			return nil, fmt.Errorf("scan expired: %w", err)
		}
		s.ImagePaths = paths
		out = append(out, s)
	}
	return out, rows.Err()
}

// ExpireSession flips the session to expired and removes its staged rows in
// one transaction. The flip fails closed if an import committed since the
// session was listed.
func (r *CleanupRepo) ExpireSession(ctx context.Context, id string) (domain.EntityCounts, error) {
	var counts domain.EntityCounts

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin expire: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = 'expired', current_step = 'expired'
		WHERE id = $1 AND status NOT IN ('imported', 'expired')
	`, id)
	if err != nil {
		return counts, fmt.Errorf("flip expired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return counts, cleanup.ErrNotExpirable
	}

	del := func(q string, dst *int) error {
		res, err := tx.ExecContext(ctx, q, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		*dst = int(n)
		return nil
	}

	if err := del(`DELETE FROM staged_images WHERE upload_id = $1`, &counts.Images); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("expire images: %w", err)
	}
	if err := del(`DELETE FROM staged_variations WHERE upload_id = $1`, &counts.Variations); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("expire variations: %w", err)
	}
	if err := del(`DELETE FROM staged_products WHERE upload_id = $1`, &counts.Products); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("expire products: %w", err)
	}
	if err := del(`DELETE FROM staged_families WHERE upload_id = $1`, &counts.Families); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("expire families: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.EntityCounts{}, fmt.Errorf("commit expire: %w", err)
	}
	return counts, nil
}

// ReferencedKeys returns every stored-file key some row still points at.
// Production rows count: imported images keep their staged paths after the
// staging rows are gone, and the sweep must never reclaim those files.
func (r *CleanupRepo) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT file_path FROM upload_sessions
		UNION
		SELECT path FROM staged_images
		UNION
		SELECT path FROM catalog_images
	`)
	if err != nil {
		return nil, fmt.Errorf("referenced keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k sql.NullString
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		if k.Valid && k.String != "" {
			keys[k.String] = struct{}{}
		}
	}
	return keys, rows.Err()
}
