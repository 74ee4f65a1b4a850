package consensus

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"sync"
	"time"

	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

// Status is the terminal state of a round as seen by one node.
type Status uint8

const (
	StatusCommitted Status = iota + 1
	StatusAborted
)

// Decision is a node's local verdict on a round. Commit is a local decision
// backed by a certificate, not a single global event; every node can verify
// the certificate independently.
type Decision struct {
	Status      Status
	Certificate *Certificate
}

// Applier consumes committed proposals. It runs on every node's commit path
// and must be idempotent per proposal ID; the engine serializes calls.
type Applier interface {
	ApplyCommit(ctx context.Context, p *Proposal, cert *Certificate) error
}

// Reporter receives equivocation observations together with the two
// conflicting signed votes, so the evidence can be verified downstream.
// Flagging is never silent.
type Reporter interface {
	ReportEquivocation(ctx context.Context, nodeID domain.NodeID, proposalID domain.ProposalID, first, second *Vote)
}

// Acceptor lets the embedding service veto a proposal before this node votes
// for it (structural validity, token hash verification). Returning an error
// keeps the node silent for the round.
type Acceptor func(p *Proposal) error

// ProposalAcceptor is an optional Applier extension. An applier implementing
// it becomes its node's acceptor unless WithAcceptor overrides it, so each
// node gates proposals against its own local state.
type ProposalAcceptor interface {
	AcceptProposal(p *Proposal) error
}

// Engine drives one node's participation in all rounds. Votes for the same
// proposal are serialized through the round's lock (a single-writer structure
// per proposal id); rounds for different proposals proceed concurrently.
type Engine struct {
	id        domain.NodeID
	priv      ed25519.PrivateKey
	set       *NodeSet
	transport Transport
	applier   Applier
	reporter  Reporter
	acceptor  Acceptor
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	rounds  map[domain.ProposalID]*round
	pending []*pendingCommit
	closed  map[domain.ProposalID]struct{}

	applyMu sync.Mutex

	sendMu       sync.Mutex
	lastProposed time.Time
}

// pendingCommit is a locally decided commit waiting for its turn in the
// (timestamp, proposalHash) apply order.
type pendingCommit struct {
	r        *round
	proposal *Proposal
	decision *Decision
}

// Option configures an Engine.
type Option func(*Engine)

// WithAcceptor installs the pre-vote proposal check.
func WithAcceptor(a Acceptor) Option {
	return func(e *Engine) { e.acceptor = a }
}

// WithReporter installs the equivocation reporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// NewEngine builds a node's engine and registers it on the transport when the
// transport supports registration (the LocalBus does).
func NewEngine(id domain.NodeID, priv ed25519.PrivateKey, set *NodeSet, transport Transport, applier Applier, timeout time.Duration, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		id:        id,
		priv:      priv,
		set:       set,
		transport: transport,
		applier:   applier,
		timeout:   timeout,
		logger:    logger,
		rounds:    make(map[domain.ProposalID]*round),
		closed:    make(map[domain.ProposalID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.acceptor == nil {
		if pa, ok := applier.(ProposalAcceptor); ok {
			e.acceptor = pa.AcceptProposal
		}
	}
	if bus, ok := transport.(*LocalBus); ok {
		bus.Register(id, e.Handle)
	}
	return e
}

// ID returns this node's identity.
func (e *Engine) ID() domain.NodeID { return e.id }

// Propose opens a round for p and blocks until this node reaches a terminal
// decision or ctx is done. An aborted round returns a retryable
// consensus_abort error; the proposal must not be reused.
func (e *Engine) Propose(ctx context.Context, p *Proposal) (*Decision, error) {
	if p.ID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "proposal id is required")
	}
	self, ok := e.set.Member(e.id)
	if !ok || !self.Active {
		return nil, dErrors.New(dErrors.CodeInternal, "proposing node is not an active member")
	}
	p.Proposer = e.id

	// Timestamps from one proposer are strictly increasing and pre-prepares
	// leave in timestamp order, so with in-order delivery every peer learns
	// of an earlier proposal before a later one can gather commit votes.
	// That makes the (timestamp, proposalHash) apply order below
	// deterministic across replicas for concurrent proposals.
	e.sendMu.Lock()
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if !p.Timestamp.After(e.lastProposed) {
		p.Timestamp = e.lastProposed.Add(time.Nanosecond)
	}
	e.lastProposed = p.Timestamp

	r := e.round(p.ID)
	pp := SignPrePrepare(p, e.priv)
	err := e.transport.Broadcast(ctx, Message{From: e.id, PrePrepare: pp})
	e.sendMu.Unlock()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "broadcast pre-prepare failed")
	}

	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeConsensusAbort, "round canceled before decision")
	case d := <-r.decisionCh:
		if d.Status == StatusAborted {
			return &d, dErrors.New(dErrors.CodeConsensusAbort, "quorum not reached before round deadline")
		}
		return &d, nil
	}
}

// Handle processes one inbound consensus message. It is the node's transport
// handler; the bus calls it from the node's delivery goroutine.
func (e *Engine) Handle(ctx context.Context, msg Message) {
	switch {
	case msg.PrePrepare != nil:
		e.handlePrePrepare(ctx, msg)
	case msg.Vote != nil:
		e.handleVote(ctx, msg)
	}
}

func (e *Engine) handlePrePrepare(ctx context.Context, msg Message) {
	pp := msg.PrePrepare
	p := &pp.Proposal
	if e.isClosed(p.ID) {
		return
	}

	proposer, ok := e.set.Member(p.Proposer)
	if !ok || !proposer.Active || msg.From != p.Proposer {
		return
	}
	if !VerifyPrePrepare(pp, proposer.PublicKey) {
		e.warn(ctx, "pre-prepare signature invalid", "proposal_id", p.ID, "proposer", p.Proposer)
		return
	}
	if e.acceptor != nil {
		if err := e.acceptor(p); err != nil {
			// Stay silent for this round; without our prepare vote the
			// proposal needs quorum elsewhere.
			e.warn(ctx, "proposal rejected by acceptor", "proposal_id", p.ID, "error", err)
			return
		}
	}

	r := e.round(p.ID)
	e.advance(ctx, r, func() {
		if !r.hasProposal {
			prop := *p
			r.proposal = &prop
			r.hash = p.Hash()
			r.hasProposal = true
		}
	})
}

func (e *Engine) handleVote(ctx context.Context, msg Message) {
	v := msg.Vote
	if v.Phase != PhasePrepare && v.Phase != PhaseCommit {
		return
	}
	if e.isClosed(v.ProposalID) {
		return
	}
	voter, ok := e.set.Member(v.NodeID)
	if !ok || !voter.Active || msg.From != v.NodeID {
		return
	}
	if !VerifyVote(v, voter.PublicKey) {
		e.warn(ctx, "vote signature invalid", "proposal_id", v.ProposalID, "voter", v.NodeID)
		return
	}

	r := e.round(v.ProposalID)
	e.advance(ctx, r, func() {
		r.recordVote(v, func(equivocator domain.NodeID, first, second *Vote) {
			e.set.Flag(equivocator)
			e.warn(ctx, "equivocation detected",
				"proposal_id", v.ProposalID,
				"node_id", equivocator,
			)
			if e.reporter != nil {
				e.reporter.ReportEquivocation(ctx, equivocator, v.ProposalID, first, second)
			}
		})
	})
}

// advance mutates round state under its lock, evaluates phase transitions,
// and performs any resulting broadcasts and the commit apply outside the
// lock.
func (e *Engine) advance(ctx context.Context, r *round, mutate func()) {
	quorum := e.set.Quorum()

	r.mu.Lock()
	mutate()

	var toSend []*Vote
	var decided *Decision
	var committedProposal *Proposal

	if r.hasProposal && !r.decided {
		if !r.sentPrepare {
			r.sentPrepare = true
			toSend = append(toSend, SignVote(e.id, r.id, r.hash, PhasePrepare, e.priv))
		}
		if !r.sentCommit && r.matching(PhasePrepare, quorum) {
			r.sentCommit = true
			toSend = append(toSend, SignVote(e.id, r.id, r.hash, PhaseCommit, e.priv))
		}
		if r.matching(PhaseCommit, quorum) {
			r.decided = true
			r.stopTimer()
			cert := r.certificate()
			decided = &Decision{Status: StatusCommitted, Certificate: cert}
			proposal := *r.proposal
			committedProposal = &proposal
		}
	}
	r.mu.Unlock()

	for _, v := range toSend {
		if err := e.transport.Broadcast(ctx, Message{From: e.id, Vote: v}); err != nil {
			e.warn(ctx, "vote broadcast failed", "proposal_id", r.id, "error", err)
		}
	}

	if decided != nil {
		// Commit is irrevocable from here: the certificate exists whether or
		// not the local apply succeeds. The apply itself waits for its slot
		// in the (timestamp, proposalHash) order.
		e.enqueueCommit(r, committedProposal, decided)
		e.drainPending(ctx)
	}
}

// enqueueCommit parks a decided commit on the apply queue and closes its
// round to further messages.
func (e *Engine) enqueueCommit(r *round, p *Proposal, d *Decision) {
	e.mu.Lock()
	e.closed[p.ID] = struct{}{}
	e.pending = append(e.pending, &pendingCommit{r: r, proposal: p, decision: d})
	e.mu.Unlock()
}

// drainPending applies queued commits in (timestamp, proposalHash) order.
// A commit is held back while a round for an earlier-ordered proposal is
// still undecided, so every replica appends the same leaf sequence. The
// decision reaches the waiting Propose only after the local apply.
func (e *Engine) drainPending(ctx context.Context) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	for {
		pc := e.nextApplicable()
		if pc == nil {
			return
		}
		if err := e.applier.ApplyCommit(ctx, pc.proposal, pc.decision.Certificate); err != nil {
			e.warn(ctx, "commit apply failed", "proposal_id", pc.proposal.ID, "error", err)
		}
		pc.r.deliver(*pc.decision)
		e.scheduleCleanup(pc.proposal.ID)
	}
}

// nextApplicable pops the queue's minimum by Less, unless an undecided round
// with a known earlier-ordered proposal holds it back.
func (e *Engine) nextApplicable() *pendingCommit {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, pc := range e.pending {
		if idx == -1 || Less(pc.proposal, e.pending[idx].proposal) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	head := e.pending[idx]
	for _, r := range e.rounds {
		r.mu.Lock()
		blocked := r.hasProposal && !r.decided && Less(r.proposal, head.proposal)
		r.mu.Unlock()
		if blocked {
			return nil
		}
	}
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return head
}

// isClosed reports whether the proposal's round already reached a terminal
// decision here. Closed ids outlive round cleanup so replayed round messages
// cannot resurrect a decided round; the record log's proposal index is the
// durable copy.
func (e *Engine) isClosed(id domain.ProposalID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.closed[id]
	return ok
}

// round returns the state for a proposal, creating it lazily so votes that
// outrun their pre-prepare are not lost. Every round carries its own abort
// deadline.
func (e *Engine) round(id domain.ProposalID) *round {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rounds[id]; ok {
		return r
	}
	r := newRound(id)
	r.timer = time.AfterFunc(e.timeout, func() {
		if r.abort() {
			e.mu.Lock()
			e.closed[id] = struct{}{}
			e.mu.Unlock()
			e.scheduleCleanup(id)
			// The aborted round may have been holding back later commits.
			e.drainPending(context.Background())
		}
	})
	e.rounds[id] = r
	return r
}

func (e *Engine) scheduleCleanup(id domain.ProposalID) {
	time.AfterFunc(e.timeout, func() {
		e.mu.Lock()
		delete(e.rounds, id)
		e.mu.Unlock()
	})
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	if e.logger != nil {
		e.logger.WarnContext(ctx, msg, args...)
	}
}
