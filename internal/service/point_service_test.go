package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type mockPointRepo struct {
	totals map[string]int
}

func newMockPointRepo() *mockPointRepo {
	return &mockPointRepo{totals: make(map[string]int)}
}

func (m *mockPointRepo) Get(ctx context.Context, userID string) (*models.Point, error) {
	total, ok := m.totals[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Point{UserID: userID, TotalPoints: total}, nil
}

func (m *mockPointRepo) SetTotal(ctx context.Context, userID string, total int, at time.Time) error {
	m.totals[userID] = total
	return nil
}

func TestPointsGetMissingRowReadsAsZero(t *testing.T) {
	repo := newMockPointRepo()
	svc := NewPointService(repo, newMockRoster(), nil, nil, nil, nil)

	point, err := svc.Get(context.Background(), studentClaims("stu-1"), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 0, point.TotalPoints)
	assert.Equal(t, "stu-1", point.UserID)
}

func TestPointsGetStudentsSeeOnlyThemselves(t *testing.T) {
	repo := newMockPointRepo()
	repo.totals["stu-2"] = 12
	svc := NewPointService(repo, newMockRoster(), nil, nil, nil, nil)

	_, err := svc.Get(context.Background(), studentClaims("stu-1"), "stu-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Empty target defaults to the caller.
	point, err := svc.Get(context.Background(), studentClaims("stu-2"), "")
	require.NoError(t, err)
	assert.Equal(t, 12, point.TotalPoints)

	point, err = svc.Get(context.Background(), librarianClaims("lib-1"), "stu-2")
	require.NoError(t, err)
	assert.Equal(t, 12, point.TotalPoints)
}

func TestPointsAdjustLibrarianOnly(t *testing.T) {
	repo := newMockPointRepo()
	roster := newMockRoster(student("stu-1", "Jane Doe"))
	board := &mockInvalidator{}
	audit := &mockAuditor{}
	svc := NewPointService(repo, roster, board, audit, nil, nil)

	_, err := svc.Adjust(context.Background(), teacherClaims("tch-1"), "stu-1", AdjustPointsRequest{TotalPoints: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	point, err := svc.Adjust(context.Background(), librarianClaims("lib-1"), "stu-1", AdjustPointsRequest{TotalPoints: 50})
	require.NoError(t, err)
	assert.Equal(t, 50, point.TotalPoints)
	assert.Equal(t, 50, repo.totals["stu-1"])
	assert.Equal(t, 1, board.calls)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPointsAdjust, audit.logs[0].Action)
}

func TestPointsAdjustRejectsNonStudentTarget(t *testing.T) {
	repo := newMockPointRepo()
	teacher := &models.User{ID: "tch-1", FullName: "Mr Smith", Role: models.RoleTeacher, Active: true}
	roster := newMockRoster(teacher)
	svc := NewPointService(repo, roster, nil, nil, nil, nil)

	_, err := svc.Adjust(context.Background(), librarianClaims("lib-1"), "tch-1", AdjustPointsRequest{TotalPoints: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Adjust(context.Background(), librarianClaims("lib-1"), "ghost", AdjustPointsRequest{TotalPoints: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
