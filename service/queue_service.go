package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/models"
	"transferhub/storage"
)

// QueueService manages which companies take part in the rotation.
type QueueService interface {
	RegisterCompany(ctx context.Context, name string, status models.CompanyStatus) (*models.Company, error)
	// SetCompanyStatus places newly activated companies at the back of the queue.
	SetCompanyStatus(ctx context.Context, companyID int64, status models.CompanyStatus) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
}

type queueService struct {
	stg  storage.IStorage
	log  logger.ILogger
	opts DispatchOptions
}

func NewQueueService(stg storage.IStorage, log logger.ILogger, opts DispatchOptions) QueueService {
	return &queueService{
		stg:  stg,
		log:  log,
		opts: opts.withDefaults(),
	}
}

func (s *queueService) inTx(ctx context.Context, op string, fn func(tx storage.ITx) error) error {
	return withConflictRetry(ctx, s.opts, op, nil, func(ctx context.Context) error {
		return s.stg.InTx(ctx, fn)
	})
}

func (s *queueService) RegisterCompany(ctx context.Context, name string, status models.CompanyStatus) (*models.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.New(errs.CodeInvalidInput, "company name is required")
	}
	if status == "" {
		status = models.CompanyStatusPending
	}
	if !status.Valid() {
		return nil, errs.Newf(errs.CodeInvalidInput, "unknown company status %q", status)
	}

	var company *models.Company
	err := s.inTx(ctx, "register company", func(tx storage.ITx) error {
		if status == models.CompanyStatusActive {
			if err := tx.Company().LockActive(ctx); err != nil {
				return fmt.Errorf("lock active companies: %w", err)
			}
		}
		c, err := tx.Company().Create(ctx, &models.Company{Name: name, Status: status})
		if err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		if status == models.CompanyStatusActive {
			position, err := tx.Company().MoveToEnd(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("place company %d: %w", c.ID, err)
			}
			c.QueuePosition = &position
		}
		company = c
		return nil
	})
	if err != nil {
		s.log.Error("failed to register company", logger.String("name", name), logger.Error(err))
		return nil, err
	}
	s.log.Info("company registered",
		logger.Int64("company_id", company.ID),
		logger.String("status", string(company.Status)),
	)
	return company, nil
}

func (s *queueService) SetCompanyStatus(ctx context.Context, companyID int64, status models.CompanyStatus) (*models.Company, error) {
	if !status.Valid() {
		return nil, errs.Newf(errs.CodeInvalidInput, "unknown company status %q", status)
	}

	var company *models.Company
	err := s.inTx(ctx, fmt.Sprintf("company %d status", companyID), func(tx storage.ITx) error {
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
		company = c
		if c.Status == status {
			return nil
		}

		if status == models.CompanyStatusActive {
			// Drop the stale rank first so activation cannot collide with it.
			if err := tx.Company().UpdatePosition(ctx, companyID, nil); err != nil {
				return fmt.Errorf("clear position: %w", err)
			}
		}
		if err := tx.Company().UpdateStatus(ctx, companyID, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		c.Status = status
		if status == models.CompanyStatusActive {
			position, err := tx.Company().MoveToEnd(ctx, companyID)
			if err != nil {
				return fmt.Errorf("place company %d: %w", companyID, err)
			}
			c.QueuePosition = &position
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("company status changed",
		logger.Int64("company_id", companyID),
		logger.String("status", string(status)),
	)
	return company, nil
}

func (s *queueService) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	return s.stg.Company().ListAll(ctx)
}
