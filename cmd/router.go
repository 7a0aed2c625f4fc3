package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transferhub/pkg/logger"
	"transferhub/service"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// newRouter serves probes, metrics and read-only queue views.
func newRouter(db pinger, svc service.IServiceManager, reg *prometheus.Registry, log logger.ILogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Warning("readiness probe failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/queue", func(w http.ResponseWriter, req *http.Request) {
			companies, err := svc.Diagnostics().ListActiveCompaniesOrdered(req.Context())
			if err != nil {
				log.Error("list queue failed", logger.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			writeJSON(w, http.StatusOK, companies)
		})
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			report, err := svc.Diagnostics().HealthScore(req.Context())
			if err != nil {
				log.Error("health report failed", logger.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}
			writeJSON(w, http.StatusOK, report)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
