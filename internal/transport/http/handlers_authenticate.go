package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quorumgate/internal/token"
	"quorumgate/internal/validation"
	"quorumgate/pkg/domain"
	"quorumgate/pkg/platform/httputil"
	"quorumgate/pkg/platform/middleware/metadata"
	"quorumgate/pkg/requestcontext"
)

// ValidationService is the Stage 1 coordinator surface the handler needs.
type ValidationService interface {
	Validate(ctx context.Context, req validation.Request) (*token.Issued, error)
}

// AuthenticateHandler wires the Stage 1 endpoint.
type AuthenticateHandler struct {
	service ValidationService
	logger  *slog.Logger
}

func NewAuthenticateHandler(service ValidationService, logger *slog.Logger) *AuthenticateHandler {
	return &AuthenticateHandler{service: service, logger: logger}
}

// Register mounts the endpoint on the router.
func (h *AuthenticateHandler) Register(r chi.Router) {
	r.Post("/v1/authenticate", h.HandleAuthenticate)
}

// HandleAuthenticate handles POST /v1/authenticate.
func (h *AuthenticateHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[AuthenticateRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}

	id, err := domain.ParseRequestID(req.RequestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	address := req.Address
	if address == "" {
		address = metadata.GetClientIP(ctx)
	}

	issued, err := h.service.Validate(ctx, validation.Request{
		ID:        id,
		Timestamp: req.Timestamp,
		Payload:   req.Payload,
		Origin: validation.Origin{
			Source:  req.Source,
			Address: address,
		},
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, AuthenticateResponse{
		Token:     issued.Token,
		TokenID:   issued.TokenID,
		ExpiresAt: issued.ExpiresAt,
	})
}
