package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/models"
)

func intPtr(v int) *int { return &v }

func names(list []*models.Company) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Name)
	}
	return out
}

func positions(list []*models.Company) []int {
	out := make([]int, 0, len(list))
	for _, c := range list {
		if c.QueuePosition == nil {
			out = append(out, 0)
			continue
		}
		out = append(out, *c.QueuePosition)
	}
	return out
}

func TestRenumberPositionsCompactsAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.PutCompany(&models.Company{Name: "Delta", Status: models.CompanyStatusActive, QueuePosition: intPtr(7)})
	env.store.PutCompany(&models.Company{Name: "Bravo", Status: models.CompanyStatusActive, QueuePosition: intPtr(3)})
	env.store.PutCompany(&models.Company{Name: "Alpha", Status: models.CompanyStatusActive, QueuePosition: intPtr(3)})
	env.store.PutCompany(&models.Company{Name: "Echo", Status: models.CompanyStatusActive})
	env.store.PutCompany(&models.Company{Name: "Off", Status: models.CompanyStatusInactive, QueuePosition: intPtr(1)})

	before, err := env.diag.ListActiveCompaniesOrdered(ctx)
	require.NoError(t, err)

	first, err := env.diag.RenumberPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first.FixedCount)

	after, err := env.diag.ListActiveCompaniesOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, names(before), names(after), "renumbering must not change who is next")
	assert.Equal(t, []string{"Alpha", "Bravo", "Delta", "Echo"}, names(after))
	assert.Equal(t, []int{1, 2, 3, 4}, positions(after))

	second, err := env.diag.RenumberPositions(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.FixedCount)

	again, err := env.diag.ListActiveCompaniesOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, names(after), names(again))
	assert.Equal(t, positions(after), positions(again))
}

func TestResetQueueOrdersByName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assigned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.store.PutCompany(&models.Company{Name: "Zeta", Status: models.CompanyStatusActive, QueuePosition: intPtr(1), LastAssignedAt: &assigned})
	env.store.PutCompany(&models.Company{Name: "Alpha", Status: models.CompanyStatusActive, QueuePosition: intPtr(2), LastAssignedAt: &assigned})
	env.store.PutCompany(&models.Company{Name: "Mid", Status: models.CompanyStatusActive, QueuePosition: intPtr(9)})

	res, err := env.diag.ResetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.CompaniesUpdated)

	active, err := env.diag.ListActiveCompaniesOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, names(active))
	assert.Equal(t, []int{1, 2, 3}, positions(active))
	for _, c := range active {
		assert.Nil(t, c.LastAssignedAt, c.Name)
	}
}

func TestMoveToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	b := env.company(t, "B", 2)

	moved, err := env.diag.MoveToEnd(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *moved.QueuePosition)
	assert.Nil(t, moved.LastAssignedAt, "deprioritizing is not an assignment")

	next, err := env.dispatch.PeekNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID)

	_, err = env.diag.MoveToEnd(ctx, 404)
	assert.True(t, errs.Is(err, errs.CodeCompanyNotFound))

	off, err := env.store.Company().Create(ctx, &models.Company{Name: "Off", Status: models.CompanyStatusInactive})
	require.NoError(t, err)
	_, err = env.diag.MoveToEnd(ctx, off.ID)
	assert.True(t, errs.Is(err, errs.CodeCompanyNotActive))
}

func TestRepairsRetryTransientConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	env.company(t, "B", 5)

	env.store.InjectConflicts(1)
	renumbered, err := env.diag.RenumberPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, renumbered.FixedCount)

	env.store.InjectConflicts(1)
	reset, err := env.diag.ResetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reset.CompaniesUpdated)

	env.store.InjectConflicts(1)
	moved, err := env.diag.MoveToEnd(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *moved.QueuePosition)

	env.store.InjectConflicts(1)
	report, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
}

func TestRepairSurfacesPersistentConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	env.company(t, "B", 2)

	env.store.InjectConflicts(10)
	_, err := env.diag.MoveToEnd(ctx, a.ID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeConflict))
	assert.Equal(t, errs.ClassTransient, errs.ClassOf(err))
	assert.Equal(t, 1, env.position(t, a.ID), "failed repair must roll back")
}

func TestHealthScoreDegradesWithAnomalies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.company(t, "A", 1)
	env.company(t, "B", 2)

	baseline, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, baseline.Score)
	assert.Equal(t, 2, baseline.ActiveCompanies)

	env.store.PutCompany(&models.Company{Name: "Clash", Status: models.CompanyStatusActive, QueuePosition: intPtr(2)})
	withDuplicate, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, withDuplicate.DuplicatePositions)
	assert.Less(t, withDuplicate.Score, baseline.Score)

	_, err = env.store.Booking().Create(ctx, &models.Booking{ReferenceCode: "TR-1", Status: models.BookingStatusConfirmed})
	require.NoError(t, err)
	withBacklog, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, withBacklog.UnprocessedBookings)
	assert.Less(t, withBacklog.Score, withDuplicate.Score)

	unprocessed, err := env.diag.ListUnprocessedBookings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "TR-1", unprocessed[0].ReferenceCode)
}

func TestComputeHealthIsMonotonic(t *testing.T) {
	company := func(pos int) *models.Company {
		c := &models.Company{Status: models.CompanyStatusActive}
		if pos > 0 {
			c.QueuePosition = intPtr(pos)
		}
		return c
	}
	clean := ComputeHealth([]*models.Company{company(1), company(2), company(3)}, 0)
	assert.Equal(t, 100, clean.Score)

	prev := clean.Score
	for backlog := 1; backlog <= 40; backlog++ {
		r := ComputeHealth([]*models.Company{company(1), company(2), company(3)}, backlog)
		assert.LessOrEqual(t, r.Score, prev)
		prev = r.Score
	}

	invalid := ComputeHealth([]*models.Company{company(0), company(2), company(3)}, 0)
	assert.Equal(t, 1, invalid.InvalidPositions)
	assert.Less(t, invalid.Score, clean.Score)

	worst := ComputeHealth([]*models.Company{company(0), company(0), company(0), company(0), company(0), company(2), company(2), company(2), company(2)}, 1000)
	assert.GreaterOrEqual(t, worst.Score, 0)
	assert.LessOrEqual(t, worst.Score, invalid.Score)

	empty := ComputeHealth(nil, 0)
	assert.Equal(t, 100, empty.Score)
	assert.Zero(t, empty.ActiveCompanies)
}
