// Package consensus implements three-phase Byzantine agreement
// (pre-prepare / prepare / commit) over a registered node set. Each proposal
// runs as its own state machine; a round ends COMMITTED when a node observes
// 2f+1 matching commit votes, or ABORTED when its deadline elapses first.
package consensus

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"quorumgate/pkg/domain"
)

// Phase tags a vote within a round.
type Phase uint8

const (
	PhasePrepare Phase = iota + 1
	PhaseCommit
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// ProposalKind separates record writes from membership changes; both travel
// the same agreement path.
type ProposalKind uint8

const (
	KindRecord ProposalKind = iota + 1
	KindMembership
)

// Proposal is the unit of agreement. Discarded after its round resolves.
type Proposal struct {
	ID        domain.ProposalID
	Kind      ProposalKind
	Payload   []byte
	TokenHash [32]byte
	Timestamp time.Time
	Proposer  domain.NodeID
}

// Hash computes the digest every vote in the round must match.
func (p *Proposal) Hash() [32]byte {
	h := sha256.New()
	id := uuid.UUID(p.ID)
	h.Write(id[:])
	h.Write([]byte{byte(p.Kind)})
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp.UnixNano()))
	h.Write(ts[:])
	h.Write(p.TokenHash[:])
	h.Write(p.Payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Less defines the total order (timestamp, proposalHash) nodes use when
// applying commits, keeping the record log's leaf order deterministic.
func Less(a, b *Proposal) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	ah, bh := a.Hash(), b.Hash()
	for i := range ah {
		if ah[i] != bh[i] {
			return ah[i] < bh[i]
		}
	}
	return false
}

// PrePrepare is the proposer's signed broadcast opening a round.
type PrePrepare struct {
	Proposal  Proposal
	Signature []byte
}

// Vote is one node's signed verdict for one phase of one round. Retained only
// for the round's duration, then summarized into the commit certificate or
// discarded.
type Vote struct {
	NodeID       domain.NodeID
	ProposalID   domain.ProposalID
	ProposalHash [32]byte
	Phase        Phase
	Signature    []byte
}

// Message is the transport envelope; exactly one field is set.
type Message struct {
	From       domain.NodeID
	PrePrepare *PrePrepare
	Vote       *Vote
}

// Certificate summarizes the commit votes that justify a local commit
// decision; any node can independently re-verify it against the membership's
// public keys.
type Certificate struct {
	ProposalID   domain.ProposalID
	ProposalHash [32]byte
	CommitVotes  []Vote
}

func prePrepareDigest(p *Proposal) []byte {
	hash := p.Hash()
	out := make([]byte, 0, len("preprepare|")+len(hash))
	out = append(out, "preprepare|"...)
	out = append(out, hash[:]...)
	return out
}

func voteDigest(v *Vote) []byte {
	nodeID := uuid.UUID(v.NodeID)
	proposalID := uuid.UUID(v.ProposalID)
	out := make([]byte, 0, len(nodeID)+len(proposalID)+len(v.ProposalHash)+1)
	out = append(out, nodeID[:]...)
	out = append(out, proposalID[:]...)
	out = append(out, v.ProposalHash[:]...)
	out = append(out, byte(v.Phase))
	return out
}

// SignPrePrepare signs the proposal digest with the proposer's key.
func SignPrePrepare(p *Proposal, priv ed25519.PrivateKey) *PrePrepare {
	return &PrePrepare{
		Proposal:  *p,
		Signature: ed25519.Sign(priv, prePrepareDigest(p)),
	}
}

// VerifyPrePrepare checks the proposer's signature.
func VerifyPrePrepare(pp *PrePrepare, pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, prePrepareDigest(&pp.Proposal), pp.Signature)
}

// SignVote builds and signs a vote for the given phase.
func SignVote(nodeID domain.NodeID, proposalID domain.ProposalID, proposalHash [32]byte, phase Phase, priv ed25519.PrivateKey) *Vote {
	v := &Vote{
		NodeID:       nodeID,
		ProposalID:   proposalID,
		ProposalHash: proposalHash,
		Phase:        phase,
	}
	v.Signature = ed25519.Sign(priv, voteDigest(v))
	return v
}

// VerifyVote checks the vote signature against the claimed node's public key.
func VerifyVote(v *Vote, pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, voteDigest(v), v.Signature)
}
