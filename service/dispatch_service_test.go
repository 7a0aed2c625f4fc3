package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/metrics"
	"transferhub/pkg/models"
	"transferhub/storage/memory"
)

type testEnv struct {
	store    *memory.Store
	dispatch DispatchService
	diag     DiagnosticsService
	queue    QueueService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	log := logger.NewNop()
	m := metrics.NewDispatchMetrics(prometheus.NewRegistry())
	opts := DispatchOptions{MaxRetries: 3, RetryBase: time.Millisecond}
	return &testEnv{
		store:    store,
		dispatch: NewDispatchService(store, log, m, opts),
		diag:     NewDiagnosticsService(store, log, m, opts),
		queue:    NewQueueService(store, log, opts),
	}
}

func (e *testEnv) company(t *testing.T, name string, position int) *models.Company {
	t.Helper()
	c := &models.Company{Name: name, Status: models.CompanyStatusActive}
	if position > 0 {
		c.QueuePosition = &position
	}
	created, err := e.store.Company().Create(context.Background(), c)
	require.NoError(t, err)
	return created
}

func (e *testEnv) booking(t *testing.T, ref string) *models.Booking {
	t.Helper()
	travel := time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)
	back := travel.Add(72 * time.Hour)
	b, err := e.store.Booking().Create(context.Background(), &models.Booking{
		ReferenceCode: ref,
		Origin:        "Airport",
		Destination:   "Old Town",
		TravelDate:    travel,
		ReturnDate:    &back,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) position(t *testing.T, id int64) int {
	t.Helper()
	c, err := e.store.Company().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c.QueuePosition)
	return *c.QueuePosition
}

func TestAssignRoundRobin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	b := env.company(t, "B", 2)
	c := env.company(t, "C", 3)

	var got []int64
	for i := 0; i < 4; i++ {
		booking := env.booking(t, fmt.Sprintf("TR-%d", i))
		assignment, err := env.dispatch.Assign(ctx, booking.ID, nil)
		require.NoError(t, err)
		got = append(got, assignment.CompanyID)
	}
	assert.Equal(t, []int64{a.ID, b.ID, c.ID, a.ID}, got)
}

func TestAssignCopiesTripAndConfirmsBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	company := env.company(t, "A", 1)
	env.company(t, "B", 2)
	booking := env.booking(t, "TR-1")

	assignment, err := env.dispatch.Assign(ctx, booking.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, company.ID, assignment.CompanyID)
	assert.Equal(t, booking.Origin, assignment.Origin)
	assert.Equal(t, booking.Destination, assignment.Destination)
	assert.True(t, booking.TravelDate.Equal(assignment.PickupAt))
	require.NotNil(t, assignment.DeliveryAt)
	assert.True(t, booking.ReturnDate.Equal(*assignment.DeliveryAt))
	assert.Equal(t, models.AssignmentStatusPending, assignment.Status)
	assert.Equal(t, models.AssignmentSourceAuto, assignment.Source)

	stored, err := env.store.Booking().GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)

	rotated, err := env.store.Company().GetByID(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *rotated.QueuePosition)
	assert.NotNil(t, rotated.LastAssignedAt)
}

func TestOverrideBypassesOrderButRotates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	env.company(t, "B", 2)
	c := env.company(t, "C", 3)

	manual, err := env.dispatch.Override(ctx, env.booking(t, "TR-1").ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, manual.CompanyID)
	assert.Equal(t, models.AssignmentSourceManual, manual.Source)
	assert.Equal(t, 4, env.position(t, c.ID))

	auto, err := env.dispatch.Assign(ctx, env.booking(t, "TR-2").ID, nil)
	require.NoError(t, err)
	assert.Equal(t, a.ID, auto.CompanyID)
}

func TestAssignErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open := env.booking(t, "TR-open")
	_, err := env.dispatch.Assign(ctx, open.ID, nil)
	assert.True(t, errs.Is(err, errs.CodeNoEligibleCompany), "got %v", err)

	dormant, err := env.store.Company().Create(ctx, &models.Company{Name: "Dormant", Status: models.CompanyStatusSuspended})
	require.NoError(t, err)
	env.company(t, "Live", 1)

	cancelled, err := env.store.Booking().Create(ctx, &models.Booking{ReferenceCode: "TR-x", Status: models.BookingStatusCancelled})
	require.NoError(t, err)
	missingCompany := int64(999)

	cases := []struct {
		name      string
		bookingID int64
		companyID *int64
		code      errs.Code
	}{
		{name: "unknown booking", bookingID: 12345, code: errs.CodeBookingNotFound},
		{name: "cancelled booking", bookingID: cancelled.ID, code: errs.CodeInvalidBookingState},
		{name: "unknown company", bookingID: open.ID, companyID: &missingCompany, code: errs.CodeCompanyNotFound},
		{name: "inactive company", bookingID: open.ID, companyID: &dormant.ID, code: errs.CodeCompanyNotActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.dispatch.Assign(ctx, tc.bookingID, tc.companyID)
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.As(err).Code())
		})
	}

	n, err := env.store.Assignment().CountByBookingID(ctx, open.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "failed validations must not write")
}

func TestAssignTwiceReturnsExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.company(t, "A", 1)
	b := env.company(t, "B", 2)
	booking := env.booking(t, "TR-1")

	first, err := env.dispatch.Assign(ctx, booking.ID, nil)
	require.NoError(t, err)

	_, err = env.dispatch.Override(ctx, booking.ID, b.ID)
	require.Error(t, err)
	assert.Equal(t, errs.ClassIdempotency, errs.ClassOf(err))
	existing, ok := ExistingAssignment(err)
	require.True(t, ok)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, 2, env.position(t, b.ID), "rejected override must not rotate")
}

func TestConcurrentAssignSameBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.company(t, "A", 1)
	env.company(t, "B", 2)
	booking := env.booking(t, "TR-1")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*models.Assignment
		already []*models.Assignment
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := env.dispatch.Assign(ctx, booking.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created = append(created, a)
				return
			}
			if existing, ok := ExistingAssignment(err); ok {
				already = append(already, existing)
			}
		}()
	}
	wg.Wait()

	require.Len(t, created, 1)
	require.Len(t, already, callers-1)
	for _, a := range already {
		assert.Equal(t, created[0].ID, a.ID)
	}
	n, err := env.store.Assignment().CountByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentAssignKeepsPositionsUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, name := range []string{"A", "B", "C", "D"} {
		env.company(t, name, i+1)
	}

	const bookings = 24
	ids := make([]int64, bookings)
	for i := range ids {
		ids[i] = env.booking(t, fmt.Sprintf("TR-%d", i)).ID
	}

	var wg sync.WaitGroup
	errCh := make(chan error, bookings)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := env.dispatch.Assign(ctx, id, nil); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("assign failed: %v", err)
	}

	active, err := env.store.Company().ListActive(ctx)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, c := range active {
		require.NotNil(t, c.QueuePosition)
		assert.False(t, seen[*c.QueuePosition], "position %d held twice", *c.QueuePosition)
		seen[*c.QueuePosition] = true
	}

	report, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestAssignWithDuplicatePositionsPicksByName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bravo := env.store.PutCompany(&models.Company{Name: "Bravo", Status: models.CompanyStatusActive, QueuePosition: intPtr(1)})
	alpha := env.store.PutCompany(&models.Company{Name: "Alpha", Status: models.CompanyStatusActive, QueuePosition: intPtr(1)})

	before, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, before.DuplicatePositions)

	assignment, err := env.dispatch.Assign(ctx, env.booking(t, "TR-DUP").ID, nil)
	require.NoError(t, err)
	assert.Equal(t, alpha.ID, assignment.CompanyID)

	after, err := env.diag.HealthScore(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, after.DuplicatePositions, before.DuplicatePositions)
	assert.Zero(t, after.InvalidPositions)

	next, err := env.dispatch.PeekNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, bravo.ID, next.ID)
}

func TestAssignRetriesConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	company := env.company(t, "A", 1)
	booking := env.booking(t, "TR-1")

	env.store.InjectConflicts(2)
	assignment, err := env.dispatch.Assign(ctx, booking.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, company.ID, assignment.CompanyID)

	n, err := env.store.Assignment().CountByBookingID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAssignSurfacesPersistentConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	company := env.company(t, "A", 1)
	booking := env.booking(t, "TR-1")

	env.store.InjectConflicts(10)
	_, err := env.dispatch.Assign(ctx, booking.ID, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeConflict, errs.As(err).Code())

	stored, err := env.store.Booking().GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
	assert.Equal(t, 1, env.position(t, company.ID))
}

func TestPeekNextDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.company(t, "A", 1)
	env.company(t, "B", 2)

	for i := 0; i < 3; i++ {
		next, err := env.dispatch.PeekNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, a.ID, next.ID)
	}
	assert.Equal(t, 1, env.position(t, a.ID))
}
