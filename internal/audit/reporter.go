package audit

import (
	"context"
	"encoding/hex"

	"quorumgate/internal/consensus"
	"quorumgate/pkg/domain"
)

// Reporter adapts the publisher to the consensus engine's equivocation
// callback, so a flagged node is never silently ignored.
type Reporter struct {
	publisher *Publisher
}

func NewReporter(publisher *Publisher) *Reporter {
	return &Reporter{publisher: publisher}
}

func (r *Reporter) ReportEquivocation(ctx context.Context, nodeID domain.NodeID, proposalID domain.ProposalID, first, second *consensus.Vote) {
	r.publisher.Emit(ctx, Event{
		Kind:       KindEquivocation,
		NodeID:     nodeID.String(),
		ProposalID: proposalID.String(),
		Reason:     "conflicting signed votes in one round",
		Evidence:   []VoteEvidence{voteEvidence(first), voteEvidence(second)},
	})
}

func voteEvidence(v *consensus.Vote) VoteEvidence {
	return VoteEvidence{
		Phase:        v.Phase.String(),
		ProposalHash: hex.EncodeToString(v.ProposalHash[:]),
		Signature:    hex.EncodeToString(v.Signature),
	}
}
