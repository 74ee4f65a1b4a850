package consensus

import (
	"sync"
	"time"

	"quorumgate/pkg/domain"
)

// round is one node's state machine for one proposal. All vote handling for a
// proposal is serialized through its lock.
type round struct {
	mu sync.Mutex

	id          domain.ProposalID
	proposal    *Proposal
	hash        [32]byte
	hasProposal bool

	prepares     map[domain.NodeID]*Vote
	commits      map[domain.NodeID]*Vote
	equivocators map[domain.NodeID]struct{}

	sentPrepare bool
	sentCommit  bool
	decided     bool

	decisionCh chan Decision
	timer      *time.Timer
}

func newRound(id domain.ProposalID) *round {
	return &round{
		id:           id,
		prepares:     make(map[domain.NodeID]*Vote),
		commits:      make(map[domain.NodeID]*Vote),
		equivocators: make(map[domain.NodeID]struct{}),
		decisionCh:   make(chan Decision, 1),
	}
}

// recordVote stores a vote, detecting equivocation: two signed votes from
// one node with different proposal hashes anywhere in the round, same phase
// or across phases, discard all of that node's votes for this round and
// report the node with both conflicting votes. Caller holds r.mu.
func (r *round) recordVote(v *Vote, onEquivocation func(domain.NodeID, *Vote, *Vote)) {
	if _, banned := r.equivocators[v.NodeID]; banned {
		return
	}

	votes, other := r.prepares, r.commits
	if v.Phase == PhaseCommit {
		votes, other = r.commits, r.prepares
	}

	if existing, ok := votes[v.NodeID]; ok {
		if existing.ProposalHash == v.ProposalHash {
			return // duplicate delivery
		}
		r.ban(v.NodeID)
		onEquivocation(v.NodeID, existing, v)
		return
	}
	if prior, ok := other[v.NodeID]; ok && prior.ProposalHash != v.ProposalHash {
		r.ban(v.NodeID)
		onEquivocation(v.NodeID, prior, v)
		return
	}
	votes[v.NodeID] = v
}

func (r *round) ban(id domain.NodeID) {
	r.equivocators[id] = struct{}{}
	delete(r.prepares, id)
	delete(r.commits, id)
}

// matching reports whether at least quorum votes in the given phase match the
// round's proposal hash. Caller holds r.mu and has checked hasProposal.
func (r *round) matching(phase Phase, quorum int) bool {
	votes := r.prepares
	if phase == PhaseCommit {
		votes = r.commits
	}
	n := 0
	for _, v := range votes {
		if v.ProposalHash == r.hash {
			n++
		}
	}
	return n >= quorum
}

// certificate summarizes the matching commit votes. Caller holds r.mu.
func (r *round) certificate() *Certificate {
	cert := &Certificate{ProposalID: r.id, ProposalHash: r.hash}
	for _, v := range r.commits {
		if v.ProposalHash == r.hash {
			cert.CommitVotes = append(cert.CommitVotes, *v)
		}
	}
	return cert
}

// abort moves an undecided round to ABORTED. Returns true when this call made
// the decision.
func (r *round) abort() bool {
	r.mu.Lock()
	if r.decided {
		r.mu.Unlock()
		return false
	}
	r.decided = true
	r.mu.Unlock()

	r.deliver(Decision{Status: StatusAborted})
	return true
}

// deliver hands the terminal decision to a waiting Propose call, if any.
func (r *round) deliver(d Decision) {
	select {
	case r.decisionCh <- d:
	default:
	}
}

func (r *round) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
	}
}
