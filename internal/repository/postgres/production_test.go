package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/service/importer"
)

func TestImportTxPromotesAllEntities(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE upload_sessions").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO catalog_families").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO catalog_products").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec("INSERT INTO catalog_variations").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 21))
	mock.ExpectExec("INSERT INTO catalog_images").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 15))
	mock.ExpectQuery("SELECT COUNT").WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	// The summary lands on the session row inside the same transaction.
	mock.ExpectExec(`UPDATE upload_sessions\s+SET imported_families`).
		WithArgs("sess-1", 2, 9, 21, 15, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.ImportTx(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityCounts{Families: 2, Products: 9, Variations: 21, Images: 15}, res.Imported)
	assert.Equal(t, 1, res.SkippedRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportTxAlreadyImported(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE upload_sessions").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM upload_sessions").WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("imported"))
	mock.ExpectRollback()

	_, err := repo.ImportTx(context.Background(), "sess-1")
	assert.ErrorIs(t, err, importer.ErrAlreadyImported)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportTxNotReadyRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE upload_sessions").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM upload_sessions").WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("parsing"))
	mock.ExpectRollback()

	_, err := repo.ImportTx(context.Background(), "sess-1")
	assert.ErrorIs(t, err, importer.ErrNotReady)
}

func TestImportTxInsertFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewImportRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE upload_sessions").WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO catalog_families").WithArgs("sess-1").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.ImportTx(context.Background(), "sess-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
