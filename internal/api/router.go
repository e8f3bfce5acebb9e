package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Directory status.
	r.Get("/status", h.Status)

	// Tag mutations.
	r.Post("/tags/add", h.AddTag)
	r.Post("/tags/remove", h.RemoveTag)
	r.Post("/tags/set", h.SetTags)

	// Reference mutations and queries.
	r.Post("/references/add", h.AddReference)
	r.Post("/references/remove", h.RemoveReference)
	r.Post("/references/set", h.SetReferences)
	r.Get("/references", h.References)
	r.Get("/references/invalid", h.InvalidReferences)

	// File lifecycle.
	r.Post("/files/track", h.TrackFile)
	r.Post("/files/untrack", h.UntrackFile)
	r.Post("/files/rename", h.RenameFile)

	// Graph and search.
	r.Get("/graph", h.Graph)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
