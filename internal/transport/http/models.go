package httptransport

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"quorumgate/internal/merkle"
	"quorumgate/internal/record"
)

// AuthenticateRequest is the Stage 1 entry payload. Timestamp is the caller's
// clock; the coordinator bounds its skew.
type AuthenticateRequest struct {
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Source    string          `json:"source"`
	Address   string          `json:"address,omitempty"`
}

// AuthenticateResponse carries the minted token.
type AuthenticateResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoreRequest is the Stage 2 entry payload.
type StoreRequest struct {
	Token string          `json:"token"`
	Data  json.RawMessage `json:"data"`
}

// ProofResponse is the wire form of an inclusion proof.
type ProofResponse struct {
	LeafIndex uint64   `json:"leaf_index"`
	TreeSize  uint64   `json:"tree_size"`
	Path      [][]byte `json:"path"`
}

// RecordResponse is the wire form of a committed record.
type RecordResponse struct {
	ID              string          `json:"id"`
	ProposalID      string          `json:"proposal_id"`
	RequestID       string          `json:"request_id"`
	Data            json.RawMessage `json:"data"`
	LeafIndex       uint64          `json:"leaf_index"`
	Root            string          `json:"root"`
	Proof           ProofResponse   `json:"proof"`
	CommitTimestamp time.Time       `json:"committed_at"`
	VoteCount       int             `json:"vote_count"`
}

// RootResponse is the current local tree head.
type RootResponse struct {
	Root     string `json:"root"`
	TreeSize uint64 `json:"tree_size"`
}

// MembershipRequest proposes a change to the consensus node set.
type MembershipRequest struct {
	Add []MemberRequest `json:"add,omitempty"`

	Activate   []string `json:"activate,omitempty"`
	Deactivate []string `json:"deactivate,omitempty"`
}

// MemberRequest is the wire form of a node to add.
type MemberRequest struct {
	ID        string `json:"id"`
	PublicKey []byte `json:"public_key"`
	Endpoint  string `json:"endpoint"`
}

// NodeResponse is one member of the node set.
type NodeResponse struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Active   bool   `json:"active"`
	Flagged  bool   `json:"flagged"`
}

// MembershipResponse reports the set after a committed change.
type MembershipResponse struct {
	Version uint64         `json:"version"`
	Nodes   []NodeResponse `json:"nodes"`
}

// FromRecord converts a committed record for the wire.
func FromRecord(rec *record.PermanentRecord) RecordResponse {
	return RecordResponse{
		ID:              rec.ID.String(),
		ProposalID:      rec.ProposalID.String(),
		RequestID:       rec.RequestID.String(),
		Data:            json.RawMessage(rec.Data),
		LeafIndex:       rec.LeafIndex,
		Root:            rootHex(rec.Root),
		Proof:           fromProof(rec.Proof),
		CommitTimestamp: rec.CommitTimestamp,
		VoteCount:       len(rec.ContributingVotes),
	}
}

func fromProof(p *merkle.Proof) ProofResponse {
	if p == nil {
		return ProofResponse{}
	}
	return ProofResponse{LeafIndex: p.LeafIndex, TreeSize: p.TreeSize, Path: p.Path}
}

func rootHex(root merkle.Root) string {
	return hex.EncodeToString(root[:])
}
