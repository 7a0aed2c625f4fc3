package postgres

import (
	"context"
	"errors"

	"transferhub/pkg/logger"
	"transferhub/pkg/models"
	"transferhub/storage"
)

const assignmentColumns = `id, booking_id, company_id, origin, destination, pickup_at, delivery_at, status, source, created_at`

type assignmentRepo struct {
	db  querier
	log logger.ILogger
}

func NewAssignmentRepo(db querier, log logger.ILogger) storage.IAssignmentStorage {
	return &assignmentRepo{db: db, log: log}
}

func (r *assignmentRepo) Create(ctx context.Context, a *models.Assignment) (*models.Assignment, error) {
	if a == nil {
		return nil, errors.New("assignment is nil")
	}
	if a.Status == "" {
		a.Status = models.AssignmentStatusPending
	}
	if a.Source == "" {
		a.Source = models.AssignmentSourceAuto
	}
	query := `
		INSERT INTO assignments (booking_id, company_id, origin, destination, pickup_at, delivery_at, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		a.BookingID,
		a.CompanyID,
		a.Origin,
		a.Destination,
		a.PickupAt,
		a.DeliveryAt,
		string(a.Status),
		string(a.Source),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		err = translateError(err)
		// duplicates are an expected idempotency outcome, not worth an error log
		if !errors.Is(err, storage.ErrDuplicate) {
			r.log.Error("failed to create assignment", logger.Int64("booking_id", a.BookingID), logger.Error(err))
		}
		return nil, err
	}
	return a, nil
}

func (r *assignmentRepo) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	return r.get(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
}

func (r *assignmentRepo) GetByBookingID(ctx context.Context, bookingID int64) (*models.Assignment, error) {
	return r.get(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE booking_id = $1`, bookingID)
}

func (r *assignmentRepo) CountByBookingID(ctx context.Context, bookingID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM assignments WHERE booking_id = $1`, bookingID).Scan(&count)
	if err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

func (r *assignmentRepo) get(ctx context.Context, query string, arg int64) (*models.Assignment, error) {
	var a models.Assignment
	var status, source string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.BookingID,
		&a.CompanyID,
		&a.Origin,
		&a.Destination,
		&a.PickupAt,
		&a.DeliveryAt,
		&status,
		&source,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	a.Status = models.AssignmentStatus(status)
	a.Source = models.AssignmentSource(source)
	return &a, nil
}
