package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reblog/internal/catalog"
)

// NewRouter creates a chi router with all API routes mounted.
// domain is the public site address used for /sitemap.xml; when empty the
// sitemap route answers 404.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(cat *catalog.Catalog, domain string, sseHandler http.Handler) chi.Router {
	h := NewHandler(cat, domain)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(RequireLoaded(cat.Loaded))

		r.Get("/posts", h.ListPosts)
		r.Get("/posts/index.json", h.Manifest)
		r.Get("/posts/*", h.GetPost)

		r.Get("/sitemap.xml", h.Sitemap)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
