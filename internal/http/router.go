package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-command-pipeline/internal/app"
	"voice-command-pipeline/internal/observability/logging"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()
	logger := logging.WithComponent("http")

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not listening"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			if application.Pipeline == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
				return
			}
			writeJSON(w, http.StatusOK, application.Pipeline.Status())
		})

		r.Post("/listening/start", func(w http.ResponseWriter, r *http.Request) {
			if application.Pipeline == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
				return
			}
			if err := application.Pipeline.Start(r.Context()); err != nil {
				logger.Warn().Err(err).Msg("Start listening failed")
				writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, application.Pipeline.Status())
		})

		r.Post("/listening/stop", func(w http.ResponseWriter, _ *http.Request) {
			if application.Pipeline == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not configured"})
				return
			}
			if err := application.Pipeline.Stop(); err != nil {
				logger.Warn().Err(err).Msg("Stop listening reported errors")
			}
			writeJSON(w, http.StatusOK, application.Pipeline.Status())
		})

		// manual trigger, e.g. OnAirSupportRequestFromKeyboard
		r.Post("/events/{name}", func(w http.ResponseWriter, r *http.Request) {
			if application.Bus == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event bus not configured"})
				return
			}
			name := chi.URLParam(r, "name")
			delivered := application.Bus.Publish(name)
			logger.Info().
				Str("event", name).
				Str("requestId", middleware.GetReqID(r.Context())).
				Int("receivers", delivered).
				Msg("Event triggered over HTTP")
			writeJSON(w, http.StatusAccepted, map[string]any{"event": name, "receivers": delivered})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
