// Package requestid assigns each request a correlation ID, honoring one
// supplied by the caller so IDs survive proxy hops.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"quorumgate/pkg/requestcontext"
)

const Header = "X-Request-ID"

// Middleware reads or mints the request ID, stores it in the context, and
// echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), id)
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
