package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the API routes on a chi router with the standard
// middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/health", h.Health)
	r.Post("/documents/process", h.ProcessDocuments)
	r.Get("/documents/list", h.ListDocuments)
	r.Delete("/documents/*", h.DeleteDocument)
	r.Post("/context/generate", h.GenerateContext)

	return r
}
