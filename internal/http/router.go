package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GavinStein1/pod2chat/internal/handlers"
)

// NewRouter assembles the API routes.
func NewRouter(
	logger *slog.Logger,
	video *handlers.VideoHandler,
	ask *handlers.AskHandler,
	summary *handlers.SummaryHandler,
	health *handlers.HealthHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(CORS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.Health)
		r.Post("/videos", video.Index)
		r.Post("/ask", ask.Ask)
		r.Post("/summary", summary.Summarize)
	})

	return r
}
