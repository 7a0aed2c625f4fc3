package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/metrics"
	"transferhub/pkg/models"
	"transferhub/storage"
)

const (
	pathAuto   = "auto"
	pathManual = "manual"
)

type DispatchService interface {
	// Assign binds a booking to a company. A nil companyID lets the selector
	// choose; otherwise the given company is used as a manual override.
	Assign(ctx context.Context, bookingID int64, companyID *int64) (*models.Assignment, error)
	Override(ctx context.Context, bookingID, companyID int64) (*models.Assignment, error)
	// PeekNext reports which company the next automatic assignment would get.
	PeekNext(ctx context.Context) (*models.Company, error)
}

type dispatchService struct {
	stg     storage.IStorage
	log     logger.ILogger
	metrics *metrics.DispatchMetrics
	opts    DispatchOptions
	now     func() time.Time
}

func NewDispatchService(stg storage.IStorage, log logger.ILogger, m *metrics.DispatchMetrics, opts DispatchOptions) DispatchService {
	return &dispatchService{
		stg:     stg,
		log:     log,
		metrics: m,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

func (s *dispatchService) Override(ctx context.Context, bookingID, companyID int64) (*models.Assignment, error) {
	return s.Assign(ctx, bookingID, &companyID)
}

func (s *dispatchService) PeekNext(ctx context.Context) (*models.Company, error) {
	return selectNext(ctx, s.stg.Company())
}

func (s *dispatchService) Assign(ctx context.Context, bookingID int64, companyID *int64) (*models.Assignment, error) {
	path, source := pathAuto, models.AssignmentSourceAuto
	if companyID != nil {
		path, source = pathManual, models.AssignmentSourceManual
	}
	started := time.Now()

	assignment, position, err := s.assignWithRetry(ctx, bookingID, companyID, source)
	s.metrics.ObserveAssign(path, outcomeOf(err), time.Since(started))
	if err != nil {
		if errs.Is(err, errs.CodeAlreadyAssigned) {
			s.log.Info("booking already assigned",
				logger.Int64("booking_id", bookingID),
				logger.String("path", path),
			)
		} else {
			s.log.Error("failed to assign booking",
				logger.Int64("booking_id", bookingID),
				logger.String("path", path),
				logger.Error(err),
			)
		}
		return nil, err
	}

	s.log.Info("booking assigned",
		logger.Int64("booking_id", bookingID),
		logger.Int64("company_id", assignment.CompanyID),
		logger.String("path", path),
		logger.Int("queue_position", position),
	)
	return assignment, nil
}

// assignWithRetry reruns the whole transaction on serialization conflicts.
// Every other failure surfaces on the first attempt.
func (s *dispatchService) assignWithRetry(ctx context.Context, bookingID int64, companyID *int64, source models.AssignmentSource) (*models.Assignment, int, error) {
	var (
		assignment *models.Assignment
		position   int
	)
	onRetry := func(attempt int) {
		s.metrics.IncRetry()
		s.log.Warning("retrying assignment after conflict",
			logger.Int64("booking_id", bookingID),
			logger.Int("attempt", attempt),
		)
	}
	err := withConflictRetry(ctx, s.opts, fmt.Sprintf("booking %d", bookingID), onRetry, func(ctx context.Context) error {
		a, pos, err := s.assignOnce(ctx, bookingID, companyID, source)
		if err != nil {
			return err
		}
		assignment, position = a, pos
		return nil
	})
	if err == nil {
		return assignment, position, nil
	}

	switch {
	case errs.As(err) != nil:
		return nil, 0, err
	case errors.Is(err, storage.ErrDuplicate):
		// Lost the insert race on the booking_id constraint.
		return nil, 0, s.alreadyAssigned(ctx, bookingID)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, 0, err
	}
	return nil, 0, errs.Wrap(errs.CodeInternal, err, fmt.Sprintf("assign booking %d", bookingID))
}

// assignOnce runs one attempt of the workflow inside a single transaction.
func (s *dispatchService) assignOnce(ctx context.Context, bookingID int64, companyID *int64, source models.AssignmentSource) (*models.Assignment, int, error) {
	var (
		created  *models.Assignment
		position int
	)
	err := s.stg.InTx(ctx, func(tx storage.ITx) error {
		booking, err := tx.Booking().GetForUpdate(ctx, bookingID)
		if errors.Is(err, storage.ErrNotFound) {
			return errs.Newf(errs.CodeBookingNotFound, "booking %d not found", bookingID)
		}
		if err != nil {
			return fmt.Errorf("load booking: %w", err)
		}
		if !booking.Status.Dispatchable() {
			return errs.Newf(errs.CodeInvalidBookingState, "booking %d is %s", bookingID, booking.Status)
		}

		existing, err := tx.Assignment().GetByBookingID(ctx, bookingID)
		if err == nil {
			return alreadyAssignedError(existing)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("check existing assignment: %w", err)
		}

		if err := tx.Company().LockActive(ctx); err != nil {
			return fmt.Errorf("lock active companies: %w", err)
		}
		company, err := resolveCompany(ctx, tx.Company(), companyID)
		if err != nil {
			return err
		}

		created, err = tx.Assignment().Create(ctx, models.NewAssignment(booking, company.ID, source))
		if err != nil {
			return err
		}
		if booking.Status != models.BookingStatusConfirmed {
			if err := tx.Booking().UpdateStatus(ctx, bookingID, models.BookingStatusConfirmed); err != nil {
				return fmt.Errorf("confirm booking: %w", err)
			}
		}
		position, err = tx.Company().Rotate(ctx, company.ID, s.now())
		if err != nil {
			return fmt.Errorf("rotate company %d: %w", company.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return created, position, nil
}

func resolveCompany(ctx context.Context, companies storage.ICompanyStorage, companyID *int64) (*models.Company, error) {
	if companyID == nil {
		return selectNext(ctx, companies)
	}
	company, err := companies.GetByID(ctx, *companyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.Newf(errs.CodeCompanyNotFound, "company %d not found", *companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	if !company.IsActive() {
		return nil, errs.Newf(errs.CodeCompanyNotActive, "company %d is %s", company.ID, company.Status)
	}
	return company, nil
}

// alreadyAssigned loads the winning assignment after the failed transaction
// has rolled back.
func (s *dispatchService) alreadyAssigned(ctx context.Context, bookingID int64) error {
	existing, err := s.stg.Assignment().GetByBookingID(ctx, bookingID)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, fmt.Sprintf("load assignment for booking %d", bookingID))
	}
	return alreadyAssignedError(existing)
}

func alreadyAssignedError(existing *models.Assignment) error {
	return errs.Newf(errs.CodeAlreadyAssigned, "booking %d already assigned to company %d", existing.BookingID, existing.CompanyID).
		WithDetails(existing)
}

// ExistingAssignment extracts the assignment carried by an ALREADY_ASSIGNED error.
func ExistingAssignment(err error) (*models.Assignment, bool) {
	typed := errs.As(err)
	if typed == nil || typed.Code() != errs.CodeAlreadyAssigned {
		return nil, false
	}
	a, ok := typed.Details().(*models.Assignment)
	return a, ok
}

func outcomeOf(err error) string {
	if err == nil {
		return "assigned"
	}
	if typed := errs.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
