package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())

	// Operator endpoints — auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth))
			r.Get("/status", g.handleStatus())
			r.Handle("/metrics", promhttp.HandlerFor(
				g.host.Metrics().Registry(),
				promhttp.HandlerOpts{},
			))
			r.Route("/api", func(r chi.Router) {
				r.Get("/modules", g.handleListModules())
				r.Post("/reload", g.handleReload())
				r.Post("/events", g.handleInjectEvent())
			})
			r.Get("/ws/console", g.handleConsole())
		})
	}

	return r
}
