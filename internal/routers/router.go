package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paulgasbarra/together-we-code/internal/api"
)

func New(h *api.Handlers, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/v1/healthz", h.Health)
		r.Get("/api/v1/languages", h.ListLanguages)
		r.Get("/api/v1/sessions/{id}", h.GetSession)
		r.Post("/api/v1/sessions/{id}/token", h.MintToken)

		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	})

	// No request timeout here: websocket connections outlive any sane one.
	r.Get("/ws", h.SessionWS)

	return r
}
