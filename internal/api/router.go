package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/canvasarchive/internal/archiveservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *archiveservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/archive", h.Archive)
	r.Post("/sweep", h.Sweep)
	r.Get("/outline/*", h.Outline)
	r.Get("/search", h.Search)
	r.Get("/runs", h.Runs)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
