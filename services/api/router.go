package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"activityaudit/pkg/telemetry"
)

const requestTimeout = 60 * time.Second

// Routes constructs the chi router containing all endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware(a.config.ServiceName, a.logger))
	r.Use(middleware.Recoverer)

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", adminTokenHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	if a.config.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(a.config.RateLimitPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.svc.Gatherer, promhttp.HandlerOpts{}))

	if a.config.StaticDir != "" {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/static/index.html", http.StatusTemporaryRedirect)
		})
		r.Get("/static/index.html", a.handleIndex)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(a.config.StaticDir))))
	}

	r.Route("/activities", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/", a.handleListActivities)
		r.Post("/{activity}/signup", a.handleSignup)
		r.Delete("/{activity}/unregister", a.handleUnregister)
	})

	r.Route("/admin/audit-logs", func(r chi.Router) {
		r.Use(a.requireAdmin)
		r.With(middleware.Timeout(requestTimeout)).Get("/", a.handleListAuditLogs)
		r.With(middleware.Timeout(requestTimeout)).Get("/stats", a.handleAuditStats)
		r.With(middleware.Timeout(requestTimeout)).Post("/purge", a.handlePurge)
		// exports stream for as long as the client keeps reading
		r.Get("/export", a.handleExport)
	})

	return r, nil
}

// handleIndex serves the dashboard page itself. http.FileServer and
// http.ServeFile both redirect ".../index.html" to the directory.
func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(filepath.Join(a.config.StaticDir, "index.html"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := a.svc.Ready(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("readiness check failed")
		respondError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
