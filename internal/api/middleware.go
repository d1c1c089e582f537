// Package api implements the reblog read-only HTTP API using chi.
package api

import (
	"net/http"

	"github.com/starford/reblog/internal/apperr"
)

// RequireLoaded returns middleware that answers 503 until loaded reports
// true, so clients never mistake an empty catalog for a blog with no posts.
func RequireLoaded(loaded func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !loaded() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusServiceUnavailable, errorBody(apperr.ErrNotLoaded.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
