package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"transferhub/pkg/bot"
	"transferhub/pkg/logger"
	"transferhub/pkg/redis"
	"transferhub/service"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run probes, metrics, the queue monitor and the operator bot",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.Root().Name())
	if err != nil {
		return err
	}
	defer a.close()

	params := service.MonitorParams{
		Dispatch:       a.svc.Dispatch(),
		Diagnostics:    a.svc.Diagnostics(),
		Logger:         a.log,
		Interval:       a.cfg.AuditInterval(),
		AlertThreshold: a.cfg.HealthAlertThreshold,
		BacklogBatch:   a.cfg.BacklogBatchSize,
	}

	rdb, err := redis.New(ctx, a.cfg)
	if err != nil {
		a.log.Warning("redis unavailable, audits run without a cross-instance lock", logger.Error(err))
	} else {
		defer rdb.Close()
		lock, err := redis.NewLock(rdb, a.cfg.RedisLockKey, 2*a.cfg.AuditInterval())
		if err != nil {
			return fmt.Errorf("audit lock: %w", err)
		}
		params.Lock = lock
	}

	var operator *bot.Bot
	if a.cfg.AdminBotToken != "" {
		operator, err = bot.New(&a.cfg, a.svc, a.log)
		if err != nil {
			return fmt.Errorf("operator bot: %w", err)
		}
		params.Notifier = operator
	}

	monitor, err := service.NewMonitor(params)
	if err != nil {
		return err
	}
	if operator != nil {
		operator.SetBacklog(monitor)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.AppPort),
		Handler:           newRouter(a.store, a.svc, a.registry, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := monitor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if operator != nil {
		g.Go(func() error {
			go operator.Start()
			<-gctx.Done()
			operator.Stop()
			return nil
		})
	}

	a.log.Info("🚀 transferhub is running")
	err = g.Wait()
	a.log.Info("shutting down")
	return err
}
