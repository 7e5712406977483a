package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestBookFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectQuery("SELECT .+ FROM books WHERE id = ").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveCreditsOwnerInOneTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET status = $2, verified_at = $3, verified_by = $4, verification_note = $5, points_awarded = TRUE, points_awarded_value = $6, updated_at = $3 WHERE id = $1 AND status = $7")).
		WithArgs("b1", string(models.BookStatusApproved), at, "lib-1", nil, 3, string(models.BookStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM books WHERE id = $1")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("stu-1"))
	mock.ExpectExec("INSERT INTO points").
		WithArgs("stu-1", 3, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Approve(context.Background(), "b1", "lib-1", 3, nil, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveLostRaceRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE books SET status = ").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Approve(context.Background(), "b1", "lib-1", 3, nil, time.Now().UTC())
	assert.Equal(t, ErrNotPending, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectLostRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectExec("UPDATE books SET status = ").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Reject(context.Background(), "b1", "lib-1", "needs a proper summary", time.Now().UTC())
	assert.Equal(t, ErrNotPending, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReversesAwardedPointsInOneTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM books WHERE id = $1 RETURNING user_id, points_awarded, points_awarded_value")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "points_awarded", "points_awarded_value"}).AddRow("stu-1", true, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE points SET total_points = total_points - $2")).
		WithArgs("stu-1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "b1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnverifiedBookLeavesLedgerAlone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM books WHERE id = ").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "points_awarded", "points_awarded_value"}).AddRow("stu-1", false, 0))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "b1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWordCountIfMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE books SET word_count = $2, updated_at = $3 WHERE id = $1 AND word_count IS NULL")).
		WithArgs("b1", 46787, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetWordCountIfMissing(context.Background(), "b1", 46787)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBookRepository(db)

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).
			AddRow(string(models.BookStatusApproved), 4).
			AddRow(string(models.BookStatusPending), 1))

	counts, err := repo.CountByStatus(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.BookStatusApproved])
	assert.Equal(t, 1, counts[models.BookStatusPending])
	assert.Equal(t, 0, counts[models.BookStatusRejected])
	assert.NoError(t, mock.ExpectationsWereMet())
}
