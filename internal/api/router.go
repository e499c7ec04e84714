package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/content"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *content.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Full snapshot and directory listing.
	r.Get("/db", h.Snapshot)
	r.Get("/dirs", h.Dirs)

	// Records by logical path.
	r.Get("/records", h.GetRecords)
	r.Get("/records/*", h.GetRecords)

	// Declarative queries.
	r.Post("/query", h.Query)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
