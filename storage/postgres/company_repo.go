package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transferhub/pkg/logger"
	"transferhub/pkg/models"
	"transferhub/storage"
)

const (
	companyColumns = `id, name, status, queue_position, last_assigned_at, created_at`

	activePositionIndex = "ux_companies_active_position"
)

type companyRepo struct {
	db  querier
	log logger.ILogger
}

func NewCompanyRepo(db querier, log logger.ILogger) storage.ICompanyStorage {
	return &companyRepo{db: db, log: log}
}

func (r *companyRepo) Create(ctx context.Context, company *models.Company) (*models.Company, error) {
	if company == nil {
		return nil, errors.New("company is nil")
	}
	if company.Status == "" {
		company.Status = models.CompanyStatusPending
	}
	query := `
		INSERT INTO companies (name, status, queue_position, last_assigned_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		company.Name,
		string(company.Status),
		company.QueuePosition,
		company.LastAssignedAt,
	).Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		r.log.Error("failed to create company", logger.String("name", company.Name), logger.Error(err))
		return nil, translateError(err)
	}
	return company, nil
}

func (r *companyRepo) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	c, err := scanCompany(r.db.QueryRow(ctx, query, id))
	if err != nil {
		err = translateError(err)
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Error("failed to get company by id", logger.Int64("id", id), logger.Error(err))
		}
		return nil, err
	}
	return c, nil
}

func (r *companyRepo) ListActive(ctx context.Context) ([]*models.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies
		WHERE status = 'active'
		ORDER BY queue_position ASC NULLS LAST, name ASC, id ASC
	`
	return r.scanCompanies(ctx, query)
}

func (r *companyRepo) ListAll(ctx context.Context) ([]*models.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies
		ORDER BY (status = 'active') DESC, queue_position ASC NULLS LAST, name ASC, id ASC
	`
	return r.scanCompanies(ctx, query)
}

func (r *companyRepo) LockActive(ctx context.Context) error {
	rows, err := r.db.Query(ctx, `SELECT id FROM companies WHERE status = 'active' ORDER BY id FOR UPDATE`)
	if err != nil {
		return translateError(err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return translateError(rows.Err())
}

func (r *companyRepo) UpdatePosition(ctx context.Context, id int64, position *int) error {
	res, err := r.db.Exec(ctx, `UPDATE companies SET queue_position = $1 WHERE id = $2`, position, id)
	if err != nil {
		r.log.Error("failed to update queue position", logger.Int64("id", id), logger.Error(err))
		return translateError(err)
	}
	if res.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *companyRepo) UpdateStatus(ctx context.Context, id int64, status models.CompanyStatus) error {
	res, err := r.db.Exec(ctx, `UPDATE companies SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		r.log.Error("failed to update company status", logger.Int64("id", id), logger.Error(err))
		return translateError(err)
	}
	if res.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *companyRepo) TouchLastAssigned(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.Exec(ctx, `UPDATE companies SET last_assigned_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return translateError(err)
	}
	if res.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *companyRepo) ClearLastAssigned(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE companies SET last_assigned_at = NULL WHERE id = ANY($1)`, ids)
	return translateError(err)
}

func (r *companyRepo) MoveToEnd(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE companies
		SET queue_position = (
			SELECT COALESCE(MAX(queue_position), 0) + 1 FROM companies WHERE status = 'active'
		)
		WHERE id = $1
		RETURNING queue_position
	`
	return r.moveToEnd(ctx, query, id)
}

func (r *companyRepo) Rotate(ctx context.Context, id int64, at time.Time) (int, error) {
	query := `
		UPDATE companies
		SET queue_position = (
			SELECT COALESCE(MAX(queue_position), 0) + 1 FROM companies WHERE status = 'active'
		),
		last_assigned_at = $2
		WHERE id = $1
		RETURNING queue_position
	`
	return r.moveToEnd(ctx, query, id, at)
}

func (r *companyRepo) moveToEnd(ctx context.Context, query string, args ...any) (int, error) {
	var position int
	err := r.db.QueryRow(ctx, query, args...).Scan(&position)
	if err != nil {
		// Two writers raced for the same max+1; the caller retries the transaction.
		if constraintOf(err) == activePositionIndex {
			return 0, fmt.Errorf("%w: queue position taken concurrently", storage.ErrConflict)
		}
		return 0, translateError(err)
	}
	return position, nil
}

func (r *companyRepo) scanCompanies(ctx context.Context, query string, args ...any) ([]*models.Company, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to list companies", logger.Error(err))
		return nil, translateError(err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return companies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (*models.Company, error) {
	var c models.Company
	var status string
	if err := row.Scan(&c.ID, &c.Name, &status, &c.QueuePosition, &c.LastAssignedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = models.CompanyStatus(status)
	return &c, nil
}
