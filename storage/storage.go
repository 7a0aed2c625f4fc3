package storage

import (
	"context"
	"errors"
	"time"

	"transferhub/pkg/models"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrConflict is a serialization failure or deadlock; the whole transaction may be retried.
	ErrConflict = errors.New("storage: serialization conflict")
)

type IStorage interface {
	Company() ICompanyStorage
	Booking() IBookingStorage
	Assignment() IAssignmentStorage
	// InTx runs fn in one serializable transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx ITx) error) error
	Ping(ctx context.Context) error
	Close()
}

// ITx exposes the same repositories bound to an open transaction.
type ITx interface {
	Company() ICompanyStorage
	Booking() IBookingStorage
	Assignment() IAssignmentStorage
}

type ICompanyStorage interface {
	Create(ctx context.Context, company *models.Company) (*models.Company, error)
	GetByID(ctx context.Context, id int64) (*models.Company, error)
	// ListActive orders by queue_position asc, nulls last, then name asc.
	ListActive(ctx context.Context) ([]*models.Company, error)
	ListAll(ctx context.Context) ([]*models.Company, error)
	// LockActive row-locks every active company until the transaction ends.
	LockActive(ctx context.Context) error
	UpdatePosition(ctx context.Context, id int64, position *int) error
	UpdateStatus(ctx context.Context, id int64, status models.CompanyStatus) error
	TouchLastAssigned(ctx context.Context, id int64, at time.Time) error
	ClearLastAssigned(ctx context.Context, ids []int64) error
	// MoveToEnd sets queue_position to max(active)+1 in one statement and returns it.
	MoveToEnd(ctx context.Context, id int64) (int, error)
	// Rotate is MoveToEnd plus last_assigned_at = at.
	Rotate(ctx context.Context, id int64, at time.Time) (int, error)
}

type IBookingStorage interface {
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	// GetForUpdate row-locks the booking until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) error
	// ListUnassigned returns pending/confirmed bookings without an assignment, oldest first.
	ListUnassigned(ctx context.Context, limit int) ([]*models.Booking, error)
	CountUnassigned(ctx context.Context) (int, error)
}

type IAssignmentStorage interface {
	// Create returns ErrDuplicate when the booking already has an assignment.
	Create(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error)
	GetByID(ctx context.Context, id int64) (*models.Assignment, error)
	GetByBookingID(ctx context.Context, bookingID int64) (*models.Assignment, error)
	CountByBookingID(ctx context.Context, bookingID int64) (int, error)
}
