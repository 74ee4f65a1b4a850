package record

import (
	"context"
	"encoding/hex"
	"log/slog"

	"quorumgate/internal/consensus"
	"quorumgate/internal/merkle"
	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

// recordStore is the slice of the records store the applier needs. Declared
// here to avoid importing the store package from both directions.
type recordStore interface {
	Append(ctx context.Context, rec *PermanentRecord) error
}

// Applier is one node's commit path: committed record proposals land in the
// node's Merkle tree and record log, committed membership proposals mutate
// the shared node set. The consensus engine serializes calls per node.
type Applier struct {
	nodeID     domain.NodeID
	tree       *merkle.Tree
	store      recordStore
	set        *consensus.NodeSet
	maxPayload int
	logger     *slog.Logger
}

func NewApplier(nodeID domain.NodeID, tree *merkle.Tree, store recordStore, set *consensus.NodeSet, maxPayloadBytes int, logger *slog.Logger) *Applier {
	return &Applier{nodeID: nodeID, tree: tree, store: store, set: set, maxPayload: maxPayloadBytes, logger: logger}
}

// NodeID returns the node this applier belongs to.
func (a *Applier) NodeID() domain.NodeID { return a.nodeID }

// BindNodeSet attaches the shared membership set when it is built after the
// appliers (the cluster constructor creates appliers before the set exists).
func (a *Applier) BindNodeSet(set *consensus.NodeSet) { a.set = set }

// AtCapacity reports whether the local tree has no room for another leaf.
func (a *Applier) AtCapacity() bool {
	return a.tree.Size() >= a.tree.Capacity()
}

// ApplyCommit materializes a committed proposal. Errors here do not undo the
// cluster-wide commit; the engine logs them and the node is locally behind.
func (a *Applier) ApplyCommit(ctx context.Context, p *consensus.Proposal, cert *consensus.Certificate) error {
	switch p.Kind {
	case consensus.KindMembership:
		change, err := consensus.DecodeMembershipChange(p.Payload)
		if err != nil {
			return err
		}
		return a.set.ApplyChange(change)

	case consensus.KindRecord:
		payload, recordID, requestID, err := DecodePayload(p.Payload)
		if err != nil {
			return err
		}
		root, proof, err := a.tree.Append(payload.Data)
		if err != nil {
			return err
		}
		rec := &PermanentRecord{
			ID:                recordID,
			ProposalID:        p.ID,
			RequestID:         requestID,
			Data:              payload.Data,
			TokenHash:         hex.EncodeToString(p.TokenHash[:]),
			LeafIndex:         proof.LeafIndex,
			Root:              root,
			Proof:             proof,
			CommitTimestamp:   p.Timestamp,
			ContributingVotes: AttestCommit(cert),
		}
		if err := a.store.Append(ctx, rec); err != nil {
			return err
		}
		if a.logger != nil {
			a.logger.InfoContext(ctx, "record committed",
				"node_id", a.nodeID,
				"record_id", rec.ID,
				"leaf_index", rec.LeafIndex,
			)
		}
		return nil

	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown proposal kind %d", p.Kind)
	}
}

// Root reports this node's current tree head.
func (a *Applier) Root() (merkle.Root, uint64) {
	return a.tree.Root()
}

// AcceptProposal is the pre-vote gate: a proposal this node would refuse to
// apply never gets its prepare vote.
func (a *Applier) AcceptProposal(p *consensus.Proposal) error {
	switch p.Kind {
	case consensus.KindMembership:
		_, err := consensus.DecodeMembershipChange(p.Payload)
		return err

	case consensus.KindRecord:
		if p.Timestamp.IsZero() {
			return dErrors.New(dErrors.CodeBadRequest, "proposal timestamp is required")
		}
		if p.TokenHash == ([32]byte{}) {
			return dErrors.New(dErrors.CodeBadRequest, "proposal token hash is required")
		}
		payload, _, _, err := DecodePayload(p.Payload)
		if err != nil {
			return err
		}
		if len(payload.Data) == 0 {
			return dErrors.New(dErrors.CodeBadRequest, "record data must not be empty")
		}
		if a.maxPayload > 0 && len(payload.Data) > a.maxPayload {
			return dErrors.Newf(dErrors.CodeBadRequest, "record data exceeds %d bytes", a.maxPayload)
		}
		if a.tree.Size() >= a.tree.Capacity() {
			return dErrors.New(dErrors.CodeCapacityExhausted, "record log is at capacity")
		}
		return nil

	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown proposal kind %d", p.Kind)
	}
}
