package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"transferhub/pkg/models"
	"transferhub/service"
)

var (
	resetConfirmed bool
	registerActive bool
	backlogBatch   int
)

func init() {
	assignCmd := &cobra.Command{
		Use:   "assign <booking_id>",
		Short: "Assign a booking to the next company in rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Dispatch().Assign(ctx, bookingID, nil)
			})
		},
	}

	overrideCmd := &cobra.Command{
		Use:   "override <booking_id> <company_id>",
		Short: "Assign a booking to a specific company, bypassing rotation order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := parseID(args[0])
			if err != nil {
				return err
			}
			companyID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Dispatch().Override(ctx, bookingID, companyID)
			})
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Print the queue health report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Diagnostics().HealthScore(ctx)
			})
		},
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "List active companies in rotation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Diagnostics().ListActiveCompaniesOrdered(ctx)
			})
		},
	}

	renumberCmd := &cobra.Command{
		Use:   "renumber",
		Short: "Compact active queue positions to 1..N",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Diagnostics().RenumberPositions(ctx)
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset-queue",
		Short: "Reorder active companies by name and clear assignment history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !resetConfirmed {
				return errors.New("reset-queue is destructive; pass --yes to confirm")
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Diagnostics().ResetQueue(ctx)
			})
		},
	}
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "confirm the reset")

	moveCmd := &cobra.Command{
		Use:   "move-to-end <company_id>",
		Short: "Move a company to the back of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Diagnostics().MoveToEnd(ctx, companyID)
			})
		},
	}

	backlogCmd := &cobra.Command{
		Use:   "backlog",
		Short: "Assign unprocessed bookings, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				batch := backlogBatch
				if batch <= 0 {
					batch = a.cfg.BacklogBatchSize
				}
				monitor, err := service.NewMonitor(service.MonitorParams{
					Dispatch:     a.svc.Dispatch(),
					Diagnostics:  a.svc.Diagnostics(),
					Logger:       a.log,
					BacklogBatch: batch,
				})
				if err != nil {
					return nil, err
				}
				return monitor.ProcessBacklog(ctx)
			})
		},
	}
	backlogCmd.Flags().IntVar(&backlogBatch, "batch", 0, "bookings per sweep (default BACKLOG_BATCH_SIZE)")

	companyCmd := &cobra.Command{
		Use:   "company",
		Short: "Manage dispatch companies",
	}
	registerCmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Create a company; --active places it at the back of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.CompanyStatusPending
			if registerActive {
				status = models.CompanyStatusActive
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Queue().RegisterCompany(ctx, args[0], status)
			})
		},
	}
	registerCmd.Flags().BoolVar(&registerActive, "active", false, "activate immediately")
	statusCmd := &cobra.Command{
		Use:   "status <company_id> <active|pending|inactive|suspended>",
		Short: "Change a company's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			companyID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Queue().SetCompanyStatus(ctx, companyID, models.CompanyStatus(args[1]))
			})
		},
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all companies, active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, a *app) (any, error) {
				return a.svc.Queue().ListCompanies(ctx)
			})
		},
	}
	companyCmd.AddCommand(registerCmd, statusCmd, listCmd)

	rootCmd.AddCommand(assignCmd, overrideCmd, healthCmd, queueCmd, renumberCmd, resetCmd, moveCmd, backlogCmd, companyCmd)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
