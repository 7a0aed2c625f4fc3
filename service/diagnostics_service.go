package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/metrics"
	"transferhub/pkg/models"
	"transferhub/storage"
)

const defaultBacklogLimit = 100

type DiagnosticsService interface {
	HealthScore(ctx context.Context) (*models.HealthReport, error)
	// RenumberPositions compacts active positions to 1..N keeping the current order.
	RenumberPositions(ctx context.Context) (*models.RenumberResult, error)
	// ResetQueue orders active companies by name and clears their assignment history.
	ResetQueue(ctx context.Context) (*models.ResetResult, error)
	MoveToEnd(ctx context.Context, companyID int64) (*models.Company, error)
	ListActiveCompaniesOrdered(ctx context.Context) ([]*models.Company, error)
	ListUnprocessedBookings(ctx context.Context, limit int) ([]*models.Booking, error)
}

type diagnosticsService struct {
	stg     storage.IStorage
	log     logger.ILogger
	metrics *metrics.DispatchMetrics
	opts    DispatchOptions
}

func NewDiagnosticsService(stg storage.IStorage, log logger.ILogger, m *metrics.DispatchMetrics, opts DispatchOptions) DiagnosticsService {
	return &diagnosticsService{
		stg:     stg,
		log:     log,
		metrics: m,
		opts:    opts.withDefaults(),
	}
}

// runTx reruns fn when a concurrent assignment invalidates its snapshot.
func (s *diagnosticsService) runTx(ctx context.Context, op string, fn func(tx storage.ITx) error) error {
	onRetry := func(attempt int) {
		s.log.Warning("retrying diagnostics after conflict",
			logger.String("operation", op),
			logger.Int("attempt", attempt),
		)
	}
	return withConflictRetry(ctx, s.opts, op, onRetry, func(ctx context.Context) error {
		return s.stg.InTx(ctx, fn)
	})
}

func (s *diagnosticsService) HealthScore(ctx context.Context) (*models.HealthReport, error) {
	var report models.HealthReport
	err := s.runTx(ctx, "health", func(tx storage.ITx) error {
		active, err := tx.Company().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active companies: %w", err)
		}
		unprocessed, err := tx.Booking().CountUnassigned(ctx)
		if err != nil {
			return fmt.Errorf("count unassigned bookings: %w", err)
		}
		report = ComputeHealth(active, unprocessed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SetHealth(report.Score, report.InvalidPositions, report.DuplicatePositions, report.UnprocessedBookings)
	return &report, nil
}

func (s *diagnosticsService) RenumberPositions(ctx context.Context) (*models.RenumberResult, error) {
	var fixed int
	err := s.runTx(ctx, "renumber", func(tx storage.ITx) error {
		if err := tx.Company().LockActive(ctx); err != nil {
			return fmt.Errorf("lock active companies: %w", err)
		}
		active, err := tx.Company().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active companies: %w", err)
		}
		fixed, err = rewritePositions(ctx, tx.Company(), active)
		return err
	})
	if err != nil {
		s.log.Error("failed to renumber queue", logger.Error(err))
		return nil, err
	}
	s.metrics.IncRepair("renumber")
	s.log.Info("queue renumbered", logger.Int("fixed_count", fixed))
	return &models.RenumberResult{FixedCount: fixed}, nil
}

func (s *diagnosticsService) ResetQueue(ctx context.Context) (*models.ResetResult, error) {
	var updated int
	err := s.runTx(ctx, "reset", func(tx storage.ITx) error {
		if err := tx.Company().LockActive(ctx); err != nil {
			return fmt.Errorf("lock active companies: %w", err)
		}
		active, err := tx.Company().ListActive(ctx)
		if err != nil {
			return fmt.Errorf("list active companies: %w", err)
		}
		sort.SliceStable(active, func(i, j int) bool {
			if active[i].Name != active[j].Name {
				return active[i].Name < active[j].Name
			}
			return active[i].ID < active[j].ID
		})
		if _, err := rewritePositions(ctx, tx.Company(), active); err != nil {
			return err
		}
		ids := make([]int64, 0, len(active))
		for _, c := range active {
			ids = append(ids, c.ID)
		}
		if err := tx.Company().ClearLastAssigned(ctx, ids); err != nil {
			return fmt.Errorf("clear last assigned: %w", err)
		}
		updated = len(active)
		return nil
	})
	if err != nil {
		s.log.Error("failed to reset queue", logger.Error(err))
		return nil, err
	}
	s.metrics.IncRepair("reset")
	s.log.Warning("queue reset", logger.Int("companies_updated", updated))
	return &models.ResetResult{CompaniesUpdated: updated}, nil
}

func (s *diagnosticsService) MoveToEnd(ctx context.Context, companyID int64) (*models.Company, error) {
	var company *models.Company
	err := s.runTx(ctx, "move_to_end", func(tx storage.ITx) error {
		if err := tx.Company().LockActive(ctx); err != nil {
			return fmt.Errorf("lock active companies: %w", err)
		}
		c, err := tx.Company().GetByID(ctx, companyID)
		if errors.Is(err, storage.ErrNotFound) {
			return errs.Newf(errs.CodeCompanyNotFound, "company %d not found", companyID)
		}
		if err != nil {
			return fmt.Errorf("load company: %w", err)
		}
		if !c.IsActive() {
			return errs.Newf(errs.CodeCompanyNotActive, "company %d is %s", companyID, c.Status)
		}
		position, err := tx.Company().MoveToEnd(ctx, companyID)
		if err != nil {
			return fmt.Errorf("move company %d to end: %w", companyID, err)
		}
		c.QueuePosition = &position
		company = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRepair("move_to_end")
	s.log.Info("company moved to end of queue",
		logger.Int64("company_id", companyID),
		logger.Int("queue_position", *company.QueuePosition),
	)
	return company, nil
}

func (s *diagnosticsService) ListActiveCompaniesOrdered(ctx context.Context) ([]*models.Company, error) {
	return s.stg.Company().ListActive(ctx)
}

func (s *diagnosticsService) ListUnprocessedBookings(ctx context.Context, limit int) ([]*models.Booking, error) {
	if limit <= 0 {
		limit = defaultBacklogLimit
	}
	return s.stg.Booking().ListUnassigned(ctx, limit)
}

// rewritePositions assigns 1..N in the order of ordered and returns how many
// companies changed. Changed rows are cleared first so no intermediate state
// holds two active companies on one position.
func rewritePositions(ctx context.Context, companies storage.ICompanyStorage, ordered []*models.Company) (int, error) {
	var changed []*models.Company
	targets := make(map[int64]int, len(ordered))
	for i, c := range ordered {
		want := i + 1
		if c.QueuePosition != nil && *c.QueuePosition == want {
			continue
		}
		changed = append(changed, c)
		targets[c.ID] = want
	}
	for _, c := range changed {
		if err := companies.UpdatePosition(ctx, c.ID, nil); err != nil {
			return 0, fmt.Errorf("clear position of company %d: %w", c.ID, err)
		}
	}
	for _, c := range changed {
		want := targets[c.ID]
		if err := companies.UpdatePosition(ctx, c.ID, &want); err != nil {
			return 0, fmt.Errorf("set position of company %d: %w", c.ID, err)
		}
	}
	return len(changed), nil
}
