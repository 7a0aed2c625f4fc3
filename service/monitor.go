package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/models"
)

const (
	defaultAuditInterval  = 5 * time.Minute
	defaultAlertThreshold = 80
	defaultBacklogBatch   = 50
)

// Lock coordinates audit runs across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type MonitorParams struct {
	Dispatch    DispatchService
	Diagnostics DiagnosticsService
	Lock        Lock
	Notifier    Notifier
	Logger      logger.ILogger
	Interval    time.Duration
	// AlertThreshold is the score below which the operator is notified.
	// Zero disables alerts; a negative value selects the default.
	AlertThreshold int
	BacklogBatch   int
}

// Monitor audits queue health on a fixed cadence and drains the backlog of
// bookings that never got an assignment. It never repairs the queue itself.
type Monitor struct {
	dispatch    DispatchService
	diagnostics DiagnosticsService
	lock        Lock
	notifier    Notifier
	log         logger.ILogger
	interval    time.Duration
	threshold   int
	batch       int
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Dispatch == nil || params.Diagnostics == nil {
		return nil, errors.New("dispatch and diagnostics services are required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	m := &Monitor{
		dispatch:    params.Dispatch,
		diagnostics: params.Diagnostics,
		lock:        params.Lock,
		notifier:    params.Notifier,
		log:         params.Logger,
		interval:    params.Interval,
		threshold:   params.AlertThreshold,
		batch:       params.BacklogBatch,
	}
	if m.interval <= 0 {
		m.interval = defaultAuditInterval
	}
	if m.threshold < 0 {
		m.threshold = defaultAlertThreshold
	}
	if m.batch <= 0 {
		m.batch = defaultBacklogBatch
	}
	return m, nil
}

// Run audits immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if _, err := m.RunOnce(ctx); err != nil {
		m.log.Error("queue audit failed", logger.Error(err))
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("queue monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.log.Error("queue audit failed", logger.Error(err))
			}
		}
	}
}

// RunOnce performs one audit cycle. It returns a nil report when another
// instance holds the audit lock.
func (m *Monitor) RunOnce(ctx context.Context) (*models.HealthReport, error) {
	if m.lock != nil {
		locked, err := m.lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock acquire: %w", err)
		}
		if !locked {
			m.log.Debug("another instance is auditing; skipping this cycle")
			return nil, nil
		}
		defer func() {
			if err := m.lock.Release(ctx); err != nil {
				m.log.Error("failed to release audit lock", logger.Error(err))
			}
		}()
	}

	report, err := m.diagnostics.HealthScore(ctx)
	if err != nil {
		return nil, fmt.Errorf("health score: %w", err)
	}
	m.log.Info("queue audited",
		logger.Int("score", report.Score),
		logger.Int("active_companies", report.ActiveCompanies),
		logger.Int("invalid_positions", report.InvalidPositions),
		logger.Int("duplicate_positions", report.DuplicatePositions),
		logger.Int("unprocessed_bookings", report.UnprocessedBookings),
	)
	if report.Score < m.threshold {
		m.notify(ctx, FormatHealthAlert(report, m.threshold))
	}

	if report.UnprocessedBookings > 0 {
		if _, err := m.ProcessBacklog(ctx); err != nil {
			return report, fmt.Errorf("process backlog: %w", err)
		}
	}
	return report, nil
}

// ProcessBacklog runs automatic assignment for the oldest unprocessed
// bookings. Running out of active companies stops the sweep; the remaining
// bookings stay on hold for an operator.
func (m *Monitor) ProcessBacklog(ctx context.Context) (*models.BacklogResult, error) {
	bookings, err := m.diagnostics.ListUnprocessedBookings(ctx, m.batch)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed bookings: %w", err)
	}

	result := &models.BacklogResult{}
	for i, b := range bookings {
		_, err := m.dispatch.Assign(ctx, b.ID, nil)
		if err == nil {
			result.Assigned++
			continue
		}
		switch errs.ClassOf(err) {
		case errs.ClassExhausted:
			for _, held := range bookings[i:] {
				result.Held = append(result.Held, held.ID)
			}
			m.notify(ctx, fmt.Sprintf("No active company for %d booking(s) in backlog; manual override needed.", len(result.Held)))
			m.log.Warning("backlog sweep stopped: no eligible company", logger.Int("held", len(result.Held)))
			return result, nil
		case errs.ClassIdempotency, errs.ClassState, errs.ClassNotFound, errs.ClassTransient:
			result.Skipped++
		default:
			return result, err
		}
	}
	if len(bookings) > 0 {
		m.log.Info("backlog processed",
			logger.Int("assigned", result.Assigned),
			logger.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

func (m *Monitor) notify(ctx context.Context, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, message); err != nil {
		m.log.Error("failed to notify operator", logger.Error(err))
	}
}

// FormatHealthAlert renders a report for operators.
func FormatHealthAlert(report *models.HealthReport, threshold int) string {
	return fmt.Sprintf(
		"Queue health %d/100 (threshold %d)\nActive companies: %d\nInvalid positions: %d\nDuplicate positions: %d\nUnprocessed bookings: %d",
		report.Score, threshold,
		report.ActiveCompanies,
		report.InvalidPositions,
		report.DuplicatePositions,
		report.UnprocessedBookings,
	)
}
