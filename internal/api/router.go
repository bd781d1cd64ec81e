package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/api/handlers"
	mw "github.com/Harshitk-cp/diagnostician/internal/api/middleware"
	"github.com/Harshitk-cp/diagnostician/internal/buildconfig"
	"github.com/Harshitk-cp/diagnostician/internal/config"
	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/embedding"
	"github.com/Harshitk-cp/diagnostician/internal/llm"
	"github.com/Harshitk-cp/diagnostician/internal/metrics"
	"github.com/Harshitk-cp/diagnostician/internal/service"
	"github.com/Harshitk-cp/diagnostician/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the router and the registry its collectors live in.
type App struct {
	Router       *chi.Mux
	Registry     *prometheus.Registry
	Service      *service.InvestigationService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the production dependencies from config.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := NewDependencies(registry, logger)
	svc := deps.Service(store.NewCaseStore(db), logger)

	var pinger Pinger
	if db != nil {
		pinger = db
	}
	return NewRouter(svc, pinger, registry, logger)
}

// NewRouter mounts the HTTP surface over an already-built service. db may be
// nil, in which case /health only reports liveness.
func NewRouter(svc *service.InvestigationService, db Pinger, registry *prometheus.Registry, logger *zap.Logger) *App {
	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Registry:  registry,
		Service:   svc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, metrics.NewHTTP(registry))
	caseHandler := handlers.NewCaseHandler(svc)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Unauthenticated
	r.Get("/health", healthHandler(db))
	r.Get("/version", versionHandler)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Get("/debug/runtime", app.runtimeHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/cases", func(r chi.Router) {
			r.Post("/", caseHandler.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", caseHandler.Get)
				r.Post("/answers", caseHandler.Answer)
				r.Post("/tests", caseHandler.RecordTest)
				r.Get("/beliefs", caseHandler.Beliefs)
			})
		})
	})

	return app
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildconfig.VersionInfo())
}

func (app *App) runtimeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		writeJSON(w, http.StatusOK, map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		})
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.CaseStore       = (*store.CaseStore)(nil)
	_ domain.CaseStore       = (*store.MemoryCaseStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ domain.Oracle          = (*llm.OpenAIClient)(nil)
	_ domain.Oracle          = (*llm.AnthropicClient)(nil)
	_ domain.Oracle          = (*llm.GeminiClient)(nil)
	_ domain.Oracle          = (*llm.CerebrasClient)(nil)
	_ domain.Oracle          = (*llm.MockClient)(nil)
	_ domain.Oracle          = (*llm.RetryingOracle)(nil)
	_ domain.TestAdvisor     = (*service.KnowledgeTestAdvisor)(nil)
	_ Pinger                 = (*pgxpool.Pool)(nil)
)
