// Package requesttime pins one "now" per HTTP request so freshness checks,
// audit timestamps, and token lifetimes within a request agree with each
// other.
package requesttime

import (
	"net/http"
	"time"

	"quorumgate/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
