package main

import (
	"context"
	"fmt"
	"os"

	"transferhub/config"
	"transferhub/pkg/logger"
	"transferhub/service"
	"transferhub/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("reset failed", logger.Error(err))
		os.Exit(1)
	}
}

// run keeps every exit path inside the deferred pool close.
func run(ctx context.Context, cfg config.Config, log logger.ILogger) error {
	pg, err := postgres.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pg.Close()

	// Companies are long-lived; only bookings and assignments are wiped.
	if err := pg.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate bookings and assignments: %w", err)
	}
	log.Info("truncated bookings and assignments")

	diag := service.NewDiagnosticsService(pg, log, nil, service.DispatchOptions{
		MaxRetries: cfg.DispatchMaxRetries,
		RetryBase:  cfg.RetryBase(),
	})
	res, err := diag.ResetQueue(ctx)
	if err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	log.Info("queue reset", logger.Int("companies_updated", res.CompaniesUpdated))
	return nil
}
