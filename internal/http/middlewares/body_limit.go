package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/igloo/internal/http/errors"
)

// WithBodyLimit corta el body en max bytes. Un Content-Length declarado mayor se
// rechaza sin leer; si no, los handlers ven *http.MaxBytesError al leer de más.
func WithBodyLimit(max int64) Middleware {
	return func(next http.Handler) http.Handler {
		if max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				errors.WriteError(w, errors.ErrBodyTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
