package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/models"
)

func TestRegisterCompanyPlacesActiveAtBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.company(t, "A", 1)
	env.company(t, "B", 5)

	c, err := env.queue.RegisterCompany(ctx, "  Newcomer ", models.CompanyStatusActive)
	require.NoError(t, err)
	assert.Equal(t, "Newcomer", c.Name)
	require.NotNil(t, c.QueuePosition)
	assert.Equal(t, 6, *c.QueuePosition)

	p, err := env.queue.RegisterCompany(ctx, "Applicant", "")
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusPending, p.Status)
	assert.Nil(t, p.QueuePosition)

	_, err = env.queue.RegisterCompany(ctx, " ", models.CompanyStatusActive)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
	_, err = env.queue.RegisterCompany(ctx, "X", models.CompanyStatus("retired"))
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestSetCompanyStatusReactivationGoesToBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	env.company(t, "B", 2)

	off, err := env.queue.SetCompanyStatus(ctx, a.ID, models.CompanyStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusSuspended, off.Status)

	active, err := env.diag.ListActiveCompaniesOrdered(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(active))

	env.company(t, "C", 3)
	on, err := env.queue.SetCompanyStatus(ctx, a.ID, models.CompanyStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 4, *on.QueuePosition)

	same, err := env.queue.SetCompanyStatus(ctx, a.ID, models.CompanyStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 4, *same.QueuePosition)

	_, err = env.queue.SetCompanyStatus(ctx, 999, models.CompanyStatusActive)
	assert.True(t, errs.Is(err, errs.CodeCompanyNotFound))

	all, err := env.queue.ListCompanies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReactivationDoesNotCollideWithStalePosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.company(t, "A", 1)
	stale := env.store.PutCompany(&models.Company{Name: "Back", Status: models.CompanyStatusInactive, QueuePosition: intPtr(1)})

	c, err := env.queue.SetCompanyStatus(ctx, stale.ID, models.CompanyStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 2, *c.QueuePosition)

	report, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.DuplicatePositions)
}
