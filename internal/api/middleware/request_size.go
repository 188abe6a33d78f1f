package middleware

import (
	"net/http"
)

// DefaultMaxBodySize caps form and JSON bodies at 1MB.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize bounds request bodies to maxBytes. A declared Content-Length over
// the limit is refused with 413 before the handler runs; otherwise the body is
// wrapped so reads past the limit fail with *http.MaxBytesError.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
