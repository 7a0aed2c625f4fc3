package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"transferhub/config"
	errs "transferhub/pkg/errors"
	"transferhub/pkg/logger"
	"transferhub/pkg/metrics"
	"transferhub/service"
	"transferhub/storage/postgres"
)

var rootCmd = &cobra.Command{
	Use:           "transferhub",
	Short:         "Booking dispatch engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// app holds the wiring shared by every subcommand.
type app struct {
	cfg      config.Config
	log      logger.ILogger
	store    *postgres.Store
	registry *prometheus.Registry
	metrics  *metrics.DispatchMetrics
	svc      service.IServiceManager
}

func newApp(ctx context.Context, name string) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(name, cfg.LoggerLevel)

	store, err := postgres.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewDispatchMetrics(reg)

	svc := service.New(store, log, m, service.DispatchOptions{
		MaxRetries: cfg.DispatchMaxRetries,
		RetryBase:  cfg.RetryBase(),
	})
	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: reg,
		metrics:  m,
		svc:      svc,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// runOneShot opens the app for a single operation with a bounded context.
func runOneShot(cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	a, err := newApp(ctx, cmd.Name())
	if err != nil {
		return err
	}
	defer a.close()

	out, err := fn(ctx, a)
	if err != nil {
		if existing, ok := service.ExistingAssignment(err); ok {
			return printJSON(map[string]any{"alreadyAssigned": true, "assignment": existing})
		}
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	body := map[string]any{"message": err.Error()}
	if typed := errs.As(err); typed != nil {
		meta := errs.MetadataFor(typed.Code())
		body = map[string]any{
			"code":      typed.Code(),
			"class":     meta.Class,
			"retryable": meta.Retryable,
			"message":   typed.Message(),
		}
	}
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"error": body})
}
