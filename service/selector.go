package service

import (
	"context"
	"fmt"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/models"
	"transferhub/storage"
)

// SelectNext returns the head of an ordered active list. It never mutates
// anything, so callers may use it for dry runs.
func SelectNext(active []*models.Company) (*models.Company, error) {
	for _, c := range active {
		if c.IsActive() {
			return c, nil
		}
	}
	return nil, errs.New(errs.CodeNoEligibleCompany, "no active company in rotation")
}

// selectNext reads the active ordering from companies and picks its head.
func selectNext(ctx context.Context, companies storage.ICompanyStorage) (*models.Company, error) {
	active, err := companies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active companies: %w", err)
	}
	return SelectNext(active)
}
