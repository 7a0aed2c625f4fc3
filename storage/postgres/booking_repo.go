package postgres

import (
	"context"
	"errors"

	"transferhub/pkg/logger"
	"transferhub/pkg/models"
	"transferhub/storage"
)

const (
	bookingColumns = `b.id, b.reference_code, b.origin, b.destination, b.travel_date, b.return_date, b.status, b.created_at`

	defaultUnassignedLimit = 100
)

type bookingRepo struct {
	db  querier
	log logger.ILogger
}

func NewBookingRepo(db querier, log logger.ILogger) storage.IBookingStorage {
	return &bookingRepo{db: db, log: log}
}

func (r *bookingRepo) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if booking == nil {
		return nil, errors.New("booking is nil")
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusPending
	}
	query := `
		INSERT INTO bookings (reference_code, origin, destination, travel_date, return_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		booking.ReferenceCode,
		booking.Origin,
		booking.Destination,
		booking.TravelDate,
		booking.ReturnDate,
		string(booking.Status),
	).Scan(&booking.ID, &booking.CreatedAt)
	if err != nil {
		r.log.Error("failed to create booking", logger.String("reference_code", booking.ReferenceCode), logger.Error(err))
		return nil, translateError(err)
	}
	return booking, nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1`, id)
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id int64) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1 FOR UPDATE`, id)
}

func (r *bookingRepo) get(ctx context.Context, query string, id int64) (*models.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		err = translateError(err)
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Error("failed to get booking by id", logger.Int64("id", id), logger.Error(err))
		}
		return nil, err
	}
	return b, nil
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	res, err := r.db.Exec(ctx, `UPDATE bookings SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		r.log.Error("failed to update booking status", logger.Int64("id", id), logger.Error(err))
		return translateError(err)
	}
	if res.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *bookingRepo) ListUnassigned(ctx context.Context, limit int) ([]*models.Booking, error) {
	if limit <= 0 {
		limit = defaultUnassignedLimit
	}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		LEFT JOIN assignments a ON a.booking_id = b.id
		WHERE a.id IS NULL
		  AND b.status IN ('pending', 'confirmed')
		ORDER BY b.created_at ASC, b.id ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.log.Error("failed to list unassigned bookings", logger.Error(err))
		return nil, translateError(err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return bookings, nil
}

func (r *bookingRepo) CountUnassigned(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings b
		LEFT JOIN assignments a ON a.booking_id = b.id
		WHERE a.id IS NULL
		  AND b.status IN ('pending', 'confirmed')
	`
	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(&b.ID, &b.ReferenceCode, &b.Origin, &b.Destination, &b.TravelDate, &b.ReturnDate, &status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	return &b, nil
}
