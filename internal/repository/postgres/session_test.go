package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/session"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func sessionRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "filename", "file_path", "status", "max_pages", "created_at", "expires_at",
		"pages_processed", "total_pages", "current_step",
		"families_found", "products_found", "variations_found", "images_extracted",
		"error_message", "imported_at",
		"imported_families", "imported_products", "imported_variations", "imported_images",
		"import_skipped_rows",
	}).AddRow(id, "catalog.pdf", "uploads/"+id+".pdf", "parsing", 0, now, now.Add(7*24*time.Hour),
		3, 40, "scanning pages", 1, 5, 8, 2, "", nil, 0, 0, 0, 0, 0)
}

func TestSessionRepoCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO upload_sessions").
		WithArgs("sess-1", "catalog.pdf", "uploads/sess-1.pdf", domain.SessionUploading,
			0, "upload received", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.UploadSession{
		ID: "sess-1", Filename: "catalog.pdf", FilePath: "uploads/sess-1.pdf",
		Status: domain.SessionUploading, CurrentStep: "upload received",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM upload_sessions").
		WithArgs("sess-1").
		WillReturnRows(sessionRows("sess-1"))

	s, err := repo.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, domain.SessionParsing, s.Status)
	assert.Equal(t, 40, s.TotalPages)
	assert.Nil(t, s.ImportedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM upload_sessions").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionRepoList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT (.+) FROM upload_sessions").
		WithArgs(2, 0).
		WillReturnRows(sessionRows("sess-1"))

	out, total, err := repo.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoListEmptyPageIsJSONArray(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT (.+) FROM upload_sessions").
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, total, err := repo.List(context.Background(), 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	// An empty page must serialize as [], not null.
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestSessionRepoStagedImagePaths(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery("SELECT path FROM staged_images").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"path"}).
			AddRow("images/sess-1/0.png").
			AddRow("images/sess-1/1.jpg"))

	paths, err := repo.StagedImagePaths(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"images/sess-1/0.png", "images/sess-1/1.jpg"}, paths)
}

func TestSessionRepoDeleteCascade(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM staged_images").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM staged_variations").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec("DELETE FROM staged_products").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM staged_families").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM upload_sessions").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	counts, err := repo.DeleteCascade(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityCounts{Families: 1, Products: 3, Variations: 6, Images: 4}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoDeleteCascadeNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	for _, table := range []string{"staged_images", "staged_variations", "staged_products", "staged_families"} {
		mock.ExpectExec("DELETE FROM " + table).WithArgs("ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("DELETE FROM upload_sessions").WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteCascade(context.Background(), "ghost")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
