package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"transferhub/pkg/models"
	"transferhub/storage"
)

type companyRepo struct {
	st   *state
	lock func() func()
	now  func() time.Time
}

func (r *companyRepo) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	if company == nil {
		return nil, errors.New("company is nil")
	}
	defer r.lock()()
	if company.Status == "" {
		company.Status = models.CompanyStatusPending
	}
	if company.QueuePosition != nil && *company.QueuePosition <= 0 {
		return nil, fmt.Errorf("queue position must be positive, got %d", *company.QueuePosition)
	}
	if company.Status == models.CompanyStatusActive && r.positionTaken(0, company.QueuePosition) {
		return nil, fmt.Errorf("%w: queue position %d", storage.ErrDuplicate, *company.QueuePosition)
	}
	r.st.companySeq++
	company.ID = r.st.companySeq
	company.CreatedAt = r.now()
	r.st.companies[company.ID] = copyCompany(company)
	return company, nil
}

func (r *companyRepo) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	defer r.lock()()
	c, ok := r.st.companies[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyCompany(c), nil
}

func (r *companyRepo) ListActive(ctx context.Context) ([]*models.Company, error) {
	defer r.lock()()
	var out []*models.Company
	for _, c := range r.st.companies {
		if c.Status == models.CompanyStatusActive {
			out = append(out, copyCompany(c))
		}
	}
	sortQueue(out)
	return out, nil
}

func (r *companyRepo) ListAll(ctx context.Context) ([]*models.Company, error) {
	defer r.lock()()
	var active, rest []*models.Company
	for _, c := range r.st.companies {
		if c.Status == models.CompanyStatusActive {
			active = append(active, copyCompany(c))
		} else {
			rest = append(rest, copyCompany(c))
		}
	}
	sortQueue(active)
	sortQueue(rest)
	return append(active, rest...), nil
}

// LockActive is a no-op: transactions already hold the store mutex.
func (r *companyRepo) LockActive(ctx context.Context) error {
	return nil
}

func (r *companyRepo) UpdatePosition(ctx context.Context, id int64, position *int) error {
	defer r.lock()()
	c, ok := r.st.companies[id]
	if !ok {
		return storage.ErrNotFound
	}
	if position != nil && *position <= 0 {
		return fmt.Errorf("queue position must be positive, got %d", *position)
	}
	if c.Status == models.CompanyStatusActive && r.positionTaken(id, position) {
		return fmt.Errorf("%w: queue position %d", storage.ErrDuplicate, *position)
	}
	if position == nil {
		c.QueuePosition = nil
	} else {
		p := *position
		c.QueuePosition = &p
	}
	return nil
}

func (r *companyRepo) UpdateStatus(ctx context.Context, id int64, status models.CompanyStatus) error {
	defer r.lock()()
	c, ok := r.st.companies[id]
	if !ok {
		return storage.ErrNotFound
	}
	if status == models.CompanyStatusActive && c.Status != models.CompanyStatusActive && r.positionTaken(id, c.QueuePosition) {
		return fmt.Errorf("%w: queue position %d", storage.ErrDuplicate, *c.QueuePosition)
	}
	c.Status = status
	return nil
}

func (r *companyRepo) TouchLastAssigned(ctx context.Context, id int64, at time.Time) error {
	defer r.lock()()
	c, ok := r.st.companies[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.LastAssignedAt = &at
	return nil
}

func (r *companyRepo) ClearLastAssigned(ctx context.Context, ids []int64) error {
	defer r.lock()()
	for _, id := range ids {
		if c, ok := r.st.companies[id]; ok {
			c.LastAssignedAt = nil
		}
	}
	return nil
}

func (r *companyRepo) MoveToEnd(ctx context.Context, id int64) (int, error) {
	defer r.lock()()
	return r.moveToEnd(id, nil)
}

func (r *companyRepo) Rotate(ctx context.Context, id int64, at time.Time) (int, error) {
	defer r.lock()()
	return r.moveToEnd(id, &at)
}

func (r *companyRepo) moveToEnd(id int64, at *time.Time) (int, error) {
	c, ok := r.st.companies[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	next := r.maxActivePosition() + 1
	c.QueuePosition = &next
	if at != nil {
		t := *at
		c.LastAssignedAt = &t
	}
	return next, nil
}

func (r *companyRepo) maxActivePosition() int {
	highest := 0
	for _, c := range r.st.companies {
		if c.Status == models.CompanyStatusActive && c.QueuePosition != nil && *c.QueuePosition > highest {
			highest = *c.QueuePosition
		}
	}
	return highest
}

// positionTaken reports whether another active company already holds position.
func (r *companyRepo) positionTaken(selfID int64, position *int) bool {
	if position == nil {
		return false
	}
	for id, c := range r.st.companies {
		if id == selfID || c.Status != models.CompanyStatusActive || c.QueuePosition == nil {
			continue
		}
		if *c.QueuePosition == *position {
			return true
		}
	}
	return false
}

type bookingRepo struct {
	st   *state
	lock func() func()
	now  func() time.Time
}

func (r *bookingRepo) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if booking == nil {
		return nil, errors.New("booking is nil")
	}
	defer r.lock()()
	for _, b := range r.st.bookings {
		if b.ReferenceCode == booking.ReferenceCode {
			return nil, fmt.Errorf("%w: reference code %s", storage.ErrDuplicate, booking.ReferenceCode)
		}
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	r.st.bookingSeq++
	booking.ID = r.st.bookingSeq
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = r.now()
	}
	r.st.bookings[booking.ID] = copyBooking(booking)
	return booking, nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	defer r.lock()()
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyBooking(b), nil
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id int64) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	defer r.lock()()
	b, ok := r.st.bookings[id]
	if !ok {
		return storage.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r *bookingRepo) ListUnassigned(ctx context.Context, limit int) ([]*models.Booking, error) {
	defer r.lock()()
	out := r.unassigned()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *bookingRepo) CountUnassigned(ctx context.Context) (int, error) {
	defer r.lock()()
	return len(r.unassigned()), nil
}

func (r *bookingRepo) unassigned() []*models.Booking {
	assigned := make(map[int64]bool, len(r.st.assignments))
	for _, a := range r.st.assignments {
		assigned[a.BookingID] = true
	}
	var out []*models.Booking
	for _, b := range r.st.bookings {
		if b.Status.Dispatchable() && !assigned[b.ID] {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type assignmentRepo struct {
	st   *state
	lock func() func()
	now  func() time.Time
}

func (r *assignmentRepo) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	if a == nil {
		return nil, errors.New("assignment is nil")
	}
	defer r.lock()()
	if _, ok := r.st.bookings[a.BookingID]; !ok {
		return nil, fmt.Errorf("booking %d does not exist", a.BookingID)
	}
	if _, ok := r.st.companies[a.CompanyID]; !ok {
		return nil, fmt.Errorf("company %d does not exist", a.CompanyID)
	}
	for _, existing := range r.st.assignments {
		if existing.BookingID == a.BookingID {
			return nil, fmt.Errorf("%w: booking %d", storage.ErrDuplicate, a.BookingID)
		}
	}
	if a.Status == "" {
		a.Status = models.AssignmentStatusPending
	}
	if a.Source == "" {
		a.Source = models.AssignmentSourceAuto
	}
	r.st.assignmentSeq++
	a.ID = r.st.assignmentSeq
	a.CreatedAt = r.now()
	r.st.assignments[a.ID] = copyAssignment(a)
	return a, nil
}

func (r *assignmentRepo) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	defer r.lock()()
	a, ok := r.st.assignments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyAssignment(a), nil
}

func (r *assignmentRepo) GetByBookingID(ctx context.Context, bookingID int64) (*models.Assignment, error) {
	defer r.lock()()
	for _, a := range r.st.assignments {
		if a.BookingID == bookingID {
			return copyAssignment(a), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *assignmentRepo) CountByBookingID(ctx context.Context, bookingID int64) (int, error) {
	defer r.lock()()
	n := 0
	for _, a := range r.st.assignments {
		if a.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}
