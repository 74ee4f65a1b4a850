package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quorumgate/internal/consensus"
	"quorumgate/internal/merkle"
	"quorumgate/internal/record"
	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/platform/httputil"
	"quorumgate/pkg/requestcontext"
)

// RecordService is the Stage 2 coordinator surface the handler needs.
type RecordService interface {
	Store(ctx context.Context, tokenString string, data []byte) (*record.PermanentRecord, error)
	Record(ctx context.Context, id domain.RecordID) (*record.PermanentRecord, error)
	Root(ctx context.Context) (merkle.Root, uint64)
	ProposeMembership(ctx context.Context, change consensus.MembershipChange) error
}

// NodeSetView is the read side of the membership endpoint.
type NodeSetView interface {
	Snapshot() (uint64, []consensus.Member)
}

// RecordHandler wires the Stage 2 endpoints.
type RecordHandler struct {
	service RecordService
	nodes   NodeSetView
	logger  *slog.Logger
}

func NewRecordHandler(service RecordService, nodes NodeSetView, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{service: service, nodes: nodes, logger: logger}
}

// Register mounts the endpoints on the router.
func (h *RecordHandler) Register(r chi.Router) {
	r.Post("/v1/store", h.HandleStore)
	r.Get("/v1/records/{id}", h.HandleGetRecord)
	r.Get("/v1/root", h.HandleGetRoot)
	r.Post("/v1/nodes", h.HandleProposeMembership)
	r.Get("/v1/nodes", h.HandleListNodes)
}

// HandleStore handles POST /v1/store.
func (h *RecordHandler) HandleStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[StoreRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}
	if req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}

	rec, err := h.service.Store(ctx, req.Token, req.Data)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec))
}

// HandleGetRecord handles GET /v1/records/{id}.
func (h *RecordHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Record(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleGetRoot handles GET /v1/root.
func (h *RecordHandler) HandleGetRoot(w http.ResponseWriter, r *http.Request) {
	root, size := h.service.Root(r.Context())
	httputil.WriteJSON(w, http.StatusOK, RootResponse{
		Root:     rootHex(root),
		TreeSize: size,
	})
}

// HandleProposeMembership handles POST /v1/nodes: the change goes through a
// consensus round and the response reflects the committed set.
func (h *RecordHandler) HandleProposeMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[MembershipRequest](ctx, w, r, h.logger, requestID)
	if !ok {
		return
	}
	change, err := toMembershipChange(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.ProposeMembership(ctx, change); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.membershipResponse())
}

// HandleListNodes handles GET /v1/nodes.
func (h *RecordHandler) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.membershipResponse())
}

func (h *RecordHandler) membershipResponse() MembershipResponse {
	version, members := h.nodes.Snapshot()
	resp := MembershipResponse{Version: version, Nodes: make([]NodeResponse, 0, len(members))}
	for _, m := range members {
		resp.Nodes = append(resp.Nodes, NodeResponse{
			ID:       m.ID.String(),
			Endpoint: m.Endpoint,
			Active:   m.Active,
			Flagged:  m.Flagged,
		})
	}
	return resp
}

func toMembershipChange(req MembershipRequest) (consensus.MembershipChange, error) {
	if len(req.Add) == 0 && len(req.Activate) == 0 && len(req.Deactivate) == 0 {
		return consensus.MembershipChange{}, dErrors.New(dErrors.CodeBadRequest, "membership change is empty")
	}

	var change consensus.MembershipChange
	for _, m := range req.Add {
		change.Add = append(change.Add, consensus.MemberSpec{
			ID:        m.ID,
			PublicKey: m.PublicKey,
			Endpoint:  m.Endpoint,
		})
	}
	for _, raw := range req.Activate {
		id, err := domain.ParseNodeID(raw)
		if err != nil {
			return consensus.MembershipChange{}, err
		}
		change.Activate = append(change.Activate, id)
	}
	for _, raw := range req.Deactivate {
		id, err := domain.ParseNodeID(raw)
		if err != nil {
			return consensus.MembershipChange{}, err
		}
		change.Deactivate = append(change.Deactivate, id)
	}
	return change, nil
}
