package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
)

const lexileUpsertPattern = `INSERT INTO student_lexiles[\s\S]*ON CONFLICT \(user_id, term, year\) DO UPDATE SET lexile = EXCLUDED\.lexile`

func TestLexileUpsertCarriesConflictClause(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLexileRepository(db)

	mock.ExpectExec(lexileUpsertPattern).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.StudentLexile{UserID: "stu-1", Term: 2, Year: 2024, Lexile: 700}
	require.NoError(t, repo.Upsert(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLexileUpsertRerunIsSilentOverwrite(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLexileRepository(db)

	// Both runs go through the same INSERT; the second resolves via the
	// conflict clause, never a unique-violation error.
	mock.ExpectExec(lexileUpsertPattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(lexileUpsertPattern).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.StudentLexile{UserID: "stu-1", Term: 2, Year: 2024, Lexile: 700}
	require.NoError(t, repo.Upsert(context.Background(), rec))
	firstID := rec.ID

	require.NoError(t, repo.Upsert(context.Background(), rec))
	assert.Equal(t, firstID, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLexileFindExactNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLexileRepository(db)

	mock.ExpectQuery("SELECT .+ FROM student_lexiles WHERE user_id = ").
		WithArgs("stu-1", 1, 2025).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindExact(context.Background(), "stu-1", 1, 2025)
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLexileFindLatestOrdersByYearThenTerm(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLexileRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "term", "year", "lexile", "created_at", "updated_at"}).
		AddRow("l1", "stu-1", 3, 2024, 620, now, now)
	mock.ExpectQuery(`SELECT .+ FROM student_lexiles WHERE user_id = .+ ORDER BY year DESC, term DESC LIMIT 1`).
		WithArgs("stu-1").
		WillReturnRows(rows)

	rec, err := repo.FindLatest(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 620, rec.Lexile)
	assert.Equal(t, 3, rec.Term)
	assert.NoError(t, mock.ExpectationsWereMet())
}
