package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.Upload)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Get("/needs-review", h.ListNeedsReview)
			r.Get("/{id}", h.GetJob)
			r.Delete("/{id}", h.DeleteJob)
			r.Get("/{id}/results", h.GetResults)
			r.Patch("/{id}/review", h.Review)
			r.Get("/{id}/transparency", h.Transparency)
		})

		r.Route("/search", func(r chi.Router) {
			r.Get("/", h.Search)
			r.Post("/hybrid", h.HybridSearch)
			r.Get("/stats", h.SearchStats)
		})

		r.Route("/vector", func(r chi.Router) {
			r.Post("/similar", h.SimilarText)
			r.Get("/jobs/{id}/similar", h.SimilarJob)
			r.Get("/stats", h.VectorStats)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(h.secret, h.rec))
			r.Post("/cleanup", h.Cleanup)
			r.Get("/audit", h.ListAudit)
			r.Get("/audit/export", h.ExportAudit)
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
