package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the route tree.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The review UI runs on a separate dev origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", h.CreateUpload)
			r.Get("/", h.ListUploads)
			r.Get("/{id}", h.GetUpload)
			// Poll target; same payload as the plain GET.
			r.Get("/{id}/status", h.GetUpload)
			r.Delete("/{id}", h.DeleteUpload)
			r.Post("/{id}/import", h.ImportUpload)
		})

		r.Route("/staged", func(r chi.Router) {
			r.Get("/families", h.ListFamilies)
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Patch("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)
			r.Post("/products/{id}/restore", h.RestoreProduct)
			r.Get("/variations/{id}", h.GetVariation)
			r.Patch("/variations/{id}", h.UpdateVariation)
			r.Delete("/variations/{id}", h.DeleteVariation)
			r.Patch("/images/{id}/roles", h.UpdateImageRoles)
		})

		r.Post("/maintenance/cleanup-expired", h.RunCleanup)
	})

	return r
}
