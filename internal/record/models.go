package record

import (
	"encoding/json"
	"time"

	"quorumgate/internal/consensus"
	"quorumgate/internal/merkle"
	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

// Payload is the record content carried inside a consensus proposal. The
// proposer fixes the record ID up front so every replica stores the commit
// under the same identity.
type Payload struct {
	RecordID  string `json:"record_id"`
	RequestID string `json:"request_id"`
	Data      []byte `json:"data"`
}

// EncodePayload serializes a record payload for a consensus proposal.
func EncodePayload(p Payload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode record payload")
	}
	return b, nil
}

// DecodePayload parses a record proposal payload and its embedded IDs.
func DecodePayload(raw []byte) (Payload, domain.RecordID, domain.RequestID, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, domain.RecordID{}, domain.RequestID{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed record payload")
	}
	recordID, err := domain.ParseRecordID(p.RecordID)
	if err != nil {
		return Payload{}, domain.RecordID{}, domain.RequestID{}, err
	}
	requestID, err := domain.ParseRequestID(p.RequestID)
	if err != nil {
		return Payload{}, domain.RecordID{}, domain.RequestID{}, err
	}
	return p, recordID, requestID, nil
}

// VoteAttestation is the durable form of one commit vote, kept alongside the
// record so the commit decision stays independently re-verifiable.
type VoteAttestation struct {
	NodeID       domain.NodeID `json:"node_id"`
	ProposalHash []byte        `json:"proposal_hash"`
	Signature    []byte        `json:"signature"`
}

// AttestCommit converts a commit certificate's votes into attestations.
func AttestCommit(cert *consensus.Certificate) []VoteAttestation {
	out := make([]VoteAttestation, 0, len(cert.CommitVotes))
	for _, v := range cert.CommitVotes {
		hash := v.ProposalHash
		out = append(out, VoteAttestation{
			NodeID:       v.NodeID,
			ProposalHash: hash[:],
			Signature:    v.Signature,
		})
	}
	return out
}

// PermanentRecord is one committed entry of the append-only log, bound to its
// Merkle leaf. Never mutated after Append.
type PermanentRecord struct {
	ID                domain.RecordID
	ProposalID        domain.ProposalID
	RequestID         domain.RequestID
	Data              []byte
	TokenHash         string
	LeafIndex         uint64
	Root              merkle.Root
	Proof             *merkle.Proof
	CommitTimestamp   time.Time
	ContributingVotes []VoteAttestation
}
