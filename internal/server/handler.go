package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/douit-app/douit/internal/core"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int   // per-user rate limit
	CORSOrigins       []string
	Webhooks          *WebhookNotifier
	Metrics           *Metrics

	// WebhookDrainTimeout bounds how long cleanup waits for pending webhook
	// deliveries before aborting them.
	WebhookDrainTimeout time.Duration
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:      4 * 1024 * 1024, // 4MB
		RequestsPerMinute:   600,
		WebhookDrainTimeout: 5 * time.Second,
	}
}

type api struct {
	eng     *core.Engine
	cfg     *ServerConfig
	metrics *Metrics
	hooks   *WebhookNotifier
	logger  *slog.Logger
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(eng *core.Engine, store Pinger, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if cfg.WebhookDrainTimeout <= 0 {
		cfg.WebhookDrainTimeout = DefaultServerConfig().WebhookDrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics("douit")
	}

	a := &api{eng: eng, cfg: cfg, metrics: metrics, hooks: cfg.Webhooks, logger: logger}
	rl := newRateLimiter(cfg.RequestsPerMinute)

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(recoveryMiddleware(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", UserHeader, "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	router.Use(metricsMiddleware(metrics))

	// Health endpoints
	router.Get("/healthz", handleHealthz)
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(identityMiddleware)
		r.Use(rl.middleware)

		r.Route("/fragments", func(r chi.Router) {
			r.Post("/", a.createFragment)
			r.Get("/", a.listFragments)
			r.Get("/{id}", a.getFragment)
			r.Put("/{id}", a.updateFragment)
			r.Delete("/{id}", a.deleteFragment)
			r.Get("/{id}/versions", a.listFragmentVersions)
			r.Get("/{id}/versions/{version}", a.getFragmentVersion)
			r.Get("/{id}/references", a.listFragmentReferences)
		})

		r.Route("/sets", func(r chi.Router) {
			r.Post("/", a.createSet)
			r.Get("/", a.listSets)
			r.Get("/{id}", a.getSet)
			r.Put("/{id}", a.updateSet)
			r.Delete("/{id}", a.deleteSet)
			r.Post("/{id}/fragments", a.addFragmentRef)
			r.Put("/{id}/order", a.reorderRefs)
			r.Put("/{id}/visibility", a.setVisibility)
			r.Get("/{id}/render", a.renderSet)
			r.Get("/{id}/parameters", a.commonParameters)
			r.Get("/{id}/versions", a.listSetVersions)
			r.Get("/{id}/versions/{version}", a.getSetVersion)
			r.Get("/{id}/status", a.setStatus)
			r.Get("/{id}/stale", a.staleFragments)
		})

		r.Route("/understood", func(r chi.Router) {
			r.Post("/", a.addUnderstood)
			r.Get("/", a.listUnderstood)
			r.Get("/{fragmentId}", a.isUnderstood)
			r.Delete("/{fragmentId}", a.removeUnderstood)
		})
	})

	cleanup := func() {
		rl.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.WebhookDrainTimeout)
		defer cancel()
		if err := a.hooks.Shutdown(ctx); err != nil {
			logger.Warn("webhook deliveries aborted at shutdown", "error", err)
		}
	}

	return router, cleanup
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Helpers ---

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type idResponse struct {
	ID string `json:"id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// decodeRequest reads and validates a request body, writing a 400 response
// on failure.
func (a *api) decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := readJSON(r, a.cfg.MaxRequestBody, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(core.KindValidation), Message: err.Error()})
		return false
	}
	if err := validateRequest(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(core.KindValidation), Message: err.Error()})
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		a.logger.Error("request failed", "error", err, "kind", kind, "request_id", requestID(r))
	}
	writeJSON(w, status, errorBody{Error: string(kind), Message: err.Error()})
}

func writeNotFound(w http.ResponseWriter, what, id string) {
	writeJSON(w, http.StatusNotFound, errorBody{
		Error:   string(core.KindNotFound),
		Message: fmt.Sprintf("%s '%s' not found", what, id),
	})
}

// requireUser returns the caller's user id, writing a 400 response when the
// identity header is missing.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := userID(r)
	if user == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   string(core.KindValidation),
			Message: UserHeader + " header is required",
		})
		return "", false
	}
	return user, true
}

// versionParam parses the {version} path parameter.
func versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || v < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   string(core.KindValidation),
			Message: "version must be a positive integer",
		})
		return 0, false
	}
	return v, true
}
