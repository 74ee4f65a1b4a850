// Package httptransport is the thin HTTP layer: handlers delegate to the two
// stage coordinators and never embed business logic.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quorumgate/pkg/platform/httputil"
	"quorumgate/pkg/platform/middleware/metadata"
	"quorumgate/pkg/platform/middleware/requestid"
	"quorumgate/pkg/platform/middleware/requesttime"
)

// HealthChecker reports dependency health for /healthz.
type HealthChecker func() error

// NewRouter assembles the public surface.
func NewRouter(auth *AuthenticateHandler, records *RecordHandler, health HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	auth.Register(r)
	records.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"reason": err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
