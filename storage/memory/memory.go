// Package memory is an in-process implementation of storage.IStorage.
//
// It enforces the same constraints as the Postgres schema (unique booking per
// assignment, unique queue position among active companies, unique booking
// reference) and runs every transaction under one mutex, which makes InTx
// trivially serializable. A failed transaction restores the pre-transaction
// snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"transferhub/pkg/models"
	"transferhub/storage"
)

type state struct {
	companies   map[int64]*models.Company
	bookings    map[int64]*models.Booking
	assignments map[int64]*models.Assignment

	companySeq    int64
	bookingSeq    int64
	assignmentSeq int64
}

func newState() *state {
	return &state{
		companies:   map[int64]*models.Company{},
		bookings:    map[int64]*models.Booking{},
		assignments: map[int64]*models.Assignment{},
	}
}

func (s *state) clone() state {
	out := state{
		companies:     make(map[int64]*models.Company, len(s.companies)),
		bookings:      make(map[int64]*models.Booking, len(s.bookings)),
		assignments:   make(map[int64]*models.Assignment, len(s.assignments)),
		companySeq:    s.companySeq,
		bookingSeq:    s.bookingSeq,
		assignmentSeq: s.assignmentSeq,
	}
	for id, c := range s.companies {
		out.companies[id] = copyCompany(c)
	}
	for id, b := range s.bookings {
		out.bookings[id] = copyBooking(b)
	}
	for id, a := range s.assignments {
		out.assignments[id] = copyAssignment(a)
	}
	return out
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time

	injectedConflicts int
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// InjectConflicts makes the next n transactions fail with storage.ErrConflict
// after fn has run, as a serialization failure at commit would.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectedConflicts = n
}

// PutCompany stores c as-is, bypassing every constraint. It exists to load
// corrupted queues (duplicate or missing positions) for diagnostics.
func (s *Store) PutCompany(c *models.Company) *models.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.st.companySeq++
		c.ID = s.st.companySeq
	} else if c.ID > s.st.companySeq {
		s.st.companySeq = c.ID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.st.companies[c.ID] = copyCompany(c)
	return copyCompany(c)
}

func (s *Store) Company() storage.ICompanyStorage {
	return &companyRepo{st: s.st, lock: s.lock, now: s.now}
}

func (s *Store) Booking() storage.IBookingStorage {
	return &bookingRepo{st: s.st, lock: s.lock, now: s.now}
}

func (s *Store) Assignment() storage.IAssignmentStorage {
	return &assignmentRepo{st: s.st, lock: s.lock, now: s.now}
}

func (s *Store) InTx(ctx context.Context, fn func(tx storage.ITx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	err := fn(&txView{st: s.st, now: s.now})
	if err == nil && s.injectedConflicts > 0 {
		s.injectedConflicts--
		err = fmt.Errorf("%w: injected", storage.ErrConflict)
	}
	if err != nil {
		*s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() {}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

type txView struct {
	st  *state
	now func() time.Time
}

func noLock() func() { return func() {} }

func (t *txView) Company() storage.ICompanyStorage {
	return &companyRepo{st: t.st, lock: noLock, now: t.now}
}

func (t *txView) Booking() storage.IBookingStorage {
	return &bookingRepo{st: t.st, lock: noLock, now: t.now}
}

func (t *txView) Assignment() storage.IAssignmentStorage {
	return &assignmentRepo{st: t.st, lock: noLock, now: t.now}
}

// sortQueue orders by queue position ascending, nulls last, then name and id.
func sortQueue(list []*models.Company) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.QueuePosition == nil && b.QueuePosition != nil:
			return false
		case a.QueuePosition != nil && b.QueuePosition == nil:
			return true
		case a.QueuePosition != nil && b.QueuePosition != nil && *a.QueuePosition != *b.QueuePosition:
			return *a.QueuePosition < *b.QueuePosition
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func copyCompany(c *models.Company) *models.Company {
	out := *c
	if c.QueuePosition != nil {
		p := *c.QueuePosition
		out.QueuePosition = &p
	}
	if c.LastAssignedAt != nil {
		t := *c.LastAssignedAt
		out.LastAssignedAt = &t
	}
	return &out
}

func copyBooking(b *models.Booking) *models.Booking {
	out := *b
	if b.ReturnDate != nil {
		t := *b.ReturnDate
		out.ReturnDate = &t
	}
	return &out
}

func copyAssignment(a *models.Assignment) *models.Assignment {
	out := *a
	if a.DeliveryAt != nil {
		t := *a.DeliveryAt
		out.DeliveryAt = &t
	}
	return &out
}
