package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
)

type lexileKey struct {
	userID string
	term   int
	year   int
}

type mockLexileRepo struct {
	records map[lexileKey]models.StudentLexile
}

func newMockLexileRepo() *mockLexileRepo {
	return &mockLexileRepo{records: make(map[lexileKey]models.StudentLexile)}
}

func (m *mockLexileRepo) Upsert(ctx context.Context, rec *models.StudentLexile) error {
	m.records[lexileKey{rec.UserID, rec.Term, rec.Year}] = *rec
	return nil
}

func (m *mockLexileRepo) FindByUser(ctx context.Context, userID string) ([]models.StudentLexile, error) {
	var result []models.StudentLexile
	for _, rec := range m.records {
		if rec.UserID == userID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *mockLexileRepo) FindExact(ctx context.Context, userID string, term, year int) (*models.StudentLexile, error) {
	if rec, ok := m.records[lexileKey{userID, term, year}]; ok {
		return &rec, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLexileRepo) FindLatest(ctx context.Context, userID string) (*models.StudentLexile, error) {
	var latest *models.StudentLexile
	for key, rec := range m.records {
		if key.userID != userID {
			continue
		}
		rec := rec
		if latest == nil || rec.Year > latest.Year || (rec.Year == latest.Year && rec.Term > latest.Term) {
			latest = &rec
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *mockLexileRepo) FindByUsersAndYear(ctx context.Context, userIDs []string, year int) ([]models.StudentLexile, error) {
	ids := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		ids[id] = struct{}{}
	}
	var result []models.StudentLexile
	for key, rec := range m.records {
		if key.year != year {
			continue
		}
		if _, ok := ids[key.userID]; ok {
			result = append(result, rec)
		}
	}
	return result, nil
}

type mockRoster struct {
	users map[string]*models.User
}

func newMockRoster(users ...*models.User) *mockRoster {
	roster := &mockRoster{users: make(map[string]*models.User)}
	for _, u := range users {
		roster.users[u.ID] = u
	}
	return roster
}

func (m *mockRoster) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoster) ListStudents(ctx context.Context, grade, className string) ([]models.User, error) {
	var result []models.User
	for _, u := range m.users {
		if u.Role != models.RoleStudent {
			continue
		}
		if grade != "" && (u.Grade == nil || *u.Grade != grade) {
			continue
		}
		if className != "" && (u.ClassName == nil || *u.ClassName != className) {
			continue
		}
		result = append(result, *u)
	}
	return result, nil
}

func student(id, name string) *models.User {
	return &models.User{ID: id, FullName: name, Role: models.RoleStudent, Active: true}
}

func fixedClock(month time.Month, year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, 15, 12, 0, 0, 0, time.UTC)
	}
}

func TestCurrentLexileFallsBackToLatest(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(student("stu-1", "Jane Doe"))
	svc := NewLexileService(repo, roster, nil, nil)
	svc.now = fixedClock(time.October, 2024) // term 1, year 2025

	// No records at all.
	current, err := svc.CurrentLexile(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Nil(t, current)

	// Only an older record: fall back to it.
	require.NoError(t, repo.Upsert(context.Background(), &models.StudentLexile{UserID: "stu-1", Term: 3, Year: 2024, Lexile: 620}))
	current, err = svc.CurrentLexile(context.Background(), "stu-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 620, *current)

	// Exact record for the current term wins.
	require.NoError(t, repo.Upsert(context.Background(), &models.StudentLexile{UserID: "stu-1", Term: 1, Year: 2025, Lexile: 660}))
	current, err = svc.CurrentLexile(context.Background(), "stu-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 660, *current)
}

func TestUpsertValidatesRange(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(student("stu-1", "Jane Doe"))
	svc := NewLexileService(repo, roster, nil, nil)

	_, err := svc.Upsert(context.Background(), "stu-1", UpsertLexileRequest{Term: 4, Year: 2025, Lexile: 600})
	require.Error(t, err)

	_, err = svc.Upsert(context.Background(), "stu-1", UpsertLexileRequest{Term: 1, Year: 2025, Lexile: 2600})
	require.Error(t, err)

	rec, err := svc.Upsert(context.Background(), "stu-1", UpsertLexileRequest{Term: 1, Year: 2025, Lexile: 650})
	require.NoError(t, err)
	assert.Equal(t, 650, rec.Lexile)

	// Re-running overwrites silently.
	rec, err = svc.Upsert(context.Background(), "stu-1", UpsertLexileRequest{Term: 1, Year: 2025, Lexile: 700})
	require.NoError(t, err)
	assert.Equal(t, 700, rec.Lexile)
	assert.Len(t, repo.records, 1)
}

func TestBulkUpsertCollectsPerLineResults(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(
		student("stu-j", "Jane Doe"),
		student("stu-s", "John Smith"),
	)
	svc := NewLexileService(repo, roster, nil, nil)

	summary, err := svc.BulkUpsert(context.Background(), BulkLexileRequest{
		Data: "Jane Doe, 650\nBad Line\nNo Match Student, 9999\nGhost Reader, 500",
		Term: 1,
		Year: 2025,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Results, 4)

	assert.Equal(t, models.BulkLineSuccess, summary.Results[0].Status)
	assert.Equal(t, 1, summary.Results[0].Line)
	require.NotNil(t, summary.Results[0].Lexile)
	assert.Equal(t, 650, *summary.Results[0].Lexile)

	assert.Equal(t, models.BulkLineError, summary.Results[1].Status)
	assert.Contains(t, summary.Results[1].Error, "invalid format")

	// Range is checked before matching, so the bogus value fails first.
	assert.Equal(t, models.BulkLineError, summary.Results[2].Status)
	assert.Contains(t, summary.Results[2].Error, "out of range")

	assert.Equal(t, models.BulkLineError, summary.Results[3].Status)
	assert.Contains(t, summary.Results[3].Error, "no matching student")

	// The good line landed.
	rec, err := repo.FindExact(context.Background(), "stu-j", 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, 650, rec.Lexile)
}

func TestBulkUpsertPartialNameMatch(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(student("stu-j", "Jane Doe"))
	svc := NewLexileService(repo, roster, nil, nil)

	summary, err := svc.BulkUpsert(context.Background(), BulkLexileRequest{
		Data: "jane, 700",
		Term: 2,
		Year: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestBulkUpsertAmbiguousMatch(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(
		student("stu-1", "Jane Doe"),
		student("stu-2", "Jane Doherty"),
	)
	svc := NewLexileService(repo, roster, nil, nil)

	summary, err := svc.BulkUpsert(context.Background(), BulkLexileRequest{
		Data: "Jane, 700\nJane Doe, 710",
		Term: 2,
		Year: 2025,
	})
	require.NoError(t, err)

	// "Jane" matches both and no exact tiebreak exists.
	assert.Equal(t, models.BulkLineError, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "ambiguous")

	// "Jane Doe" substring-matches both but resolves by exact name.
	assert.Equal(t, models.BulkLineSuccess, summary.Results[1].Status)
	rec, err := repo.FindExact(context.Background(), "stu-1", 2, 2025)
	require.NoError(t, err)
	assert.Equal(t, 710, rec.Lexile)
}

func TestClassOverviewTrends(t *testing.T) {
	repo := newMockLexileRepo()
	grade := "5"
	jane := student("stu-1", "Jane Doe")
	jane.Grade = &grade
	roster := newMockRoster(jane)
	svc := NewLexileService(repo, roster, nil, nil)

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &models.StudentLexile{UserID: "stu-1", Term: 1, Year: 2025, Lexile: 600}))
	require.NoError(t, repo.Upsert(ctx, &models.StudentLexile{UserID: "stu-1", Term: 2, Year: 2025, Lexile: 650}))
	require.NoError(t, repo.Upsert(ctx, &models.StudentLexile{UserID: "stu-1", Term: 3, Year: 2025, Lexile: 640}))

	rows, err := svc.ClassOverview(ctx, "5", "", 2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.Trend12)
	assert.Equal(t, 50, *row.Trend12)
	require.NotNil(t, row.Trend23)
	assert.Equal(t, -10, *row.Trend23)
	require.NotNil(t, row.CurrentLexile)
	assert.Equal(t, 640, *row.CurrentLexile)
}

func TestClassOverviewMissingTermsLeaveNilTrends(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(student("stu-1", "Jane Doe"))
	svc := NewLexileService(repo, roster, nil, nil)

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &models.StudentLexile{UserID: "stu-1", Term: 2, Year: 2025, Lexile: 650}))

	rows, err := svc.ClassOverview(ctx, "", "", 2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Nil(t, rows[0].Term1)
	assert.Nil(t, rows[0].Trend12)
	assert.Nil(t, rows[0].Trend23)
	require.NotNil(t, rows[0].CurrentLexile)
	assert.Equal(t, 650, *rows[0].CurrentLexile)
}

func TestExportClassOverviewCSV(t *testing.T) {
	repo := newMockLexileRepo()
	roster := newMockRoster(student("stu-1", "Jane Doe"))
	svc := NewLexileService(repo, roster, nil, nil)

	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &models.StudentLexile{UserID: "stu-1", Term: 1, Year: 2025, Lexile: 600}))

	payload, contentType, err := svc.ExportClassOverview(ctx, "", "", 2025, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "Jane Doe")
	assert.Contains(t, string(payload), "600")

	_, _, err = svc.ExportClassOverview(ctx, "", "", 2025, "xlsx")
	require.Error(t, err)
}
