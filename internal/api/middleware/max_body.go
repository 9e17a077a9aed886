package middleware

import (
	"net/http"

	"github.com/lexatlas/lexrag/internal/api"
)

// MaxBodyBytes rejects requests whose declared Content-Length exceeds limit
// and caps chunked bodies at the same limit while handlers read them.
// A limit of zero or less disables the check.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
