package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reblog/internal/apperr"
	"github.com/starford/reblog/internal/catalog"
	"github.com/starford/reblog/internal/checksum"
	"github.com/starford/reblog/internal/models"
	"github.com/starford/reblog/internal/sitemap"
)

// Handler holds API route handlers.
type Handler struct {
	cat    *catalog.Catalog
	domain string
}

// NewHandler creates a new Handler.
func NewHandler(cat *catalog.Catalog, domain string) *Handler {
	return &Handler{cat: cat, domain: domain}
}

// postID extracts the post id from the URL (everything after /posts/).
// Ids derived from nested paths contain slashes; encoded slashes are accepted
// too (e.g. 2024%2Fintro).
func postID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPosts handles GET /posts.
//
//	@Summary		List posts in listing order
//	@Tags			posts
//	@Produce		json
//	@Param			tag		query		string	false	"Filter by tag (exact match)"
//	@Success		200		{object}	PostListResponse
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	items := h.cat.Summaries(r.URL.Query().Get("tag"))
	writeJSON(w, http.StatusOK, PostListResponse{
		Posts: items,
		Total: len(items),
	})
}

// Manifest handles GET /posts/index.json, the list of source file names the
// UI loads posts from.
//
//	@Summary		List post source files
//	@Tags			posts
//	@Produce		json
//	@Success		200		{array}		string
//	@Router			/posts/index.json [get]
func (h *Handler) Manifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cat.Manifest())
}

// GetPost handles GET /posts/* and GET /posts/*/toc.
//
// A trailing /toc selects the table of contents only when the remaining id
// names a post; otherwise the whole path is taken as the id.
//
//	@Summary		Get a single post by id
//	@Tags			posts
//	@Produce		json
//	@Param			id				path		string	true	"Post id"
//	@Param			If-None-Match	header		string	false	"Checksum from a previous ETag"
//	@Success		200		{object}	PostDetail
//	@Success		304		"Not modified"
//	@Failure		404		{object}	errResponse
//	@Router			/posts/{id} [get]
//	@Router			/posts/{id}/toc [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id := postID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}

	if base, ok := strings.CutSuffix(id, "/toc"); ok {
		if p, err := h.cat.Get(base); err == nil {
			h.writeTOC(w, p)
			return
		}
	}

	p, err := h.cat.Get(id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}

	meta, err := h.cat.Stat(id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(meta.Checksum))
	if match := r.Header.Get("If-None-Match"); match != "" && checksum.MatchesETag(match, meta.Checksum) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) writeTOC(w http.ResponseWriter, p *models.Post) {
	writeJSON(w, http.StatusOK, TOCResponse{ID: p.ID, TOC: p.TableOfContents})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error("get post failed", slog.String("id", id), slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// Sitemap handles GET /sitemap.xml.
//
//	@Summary		Sitemap of every post
//	@Tags			site
//	@Produce		xml
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Router			/sitemap.xml [get]
func (h *Handler) Sitemap(w http.ResponseWriter, _ *http.Request) {
	data, err := sitemap.Build(h.domain, sitemap.Entries(h.cat))
	if err != nil {
		if errors.Is(err, sitemap.ErrNoDomain) {
			writeJSON(w, http.StatusNotFound, errorBody("sitemap not configured"))
			return
		}
		slog.Error("sitemap failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
