// Package service implements the Stage 2 coordinator: it verifies and burns
// the Stage 1 token, drives the record through a consensus round, and returns
// the committed record with its inclusion proof.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quorumgate/internal/audit"
	"quorumgate/internal/consensus"
	"quorumgate/internal/merkle"
	"quorumgate/internal/record"
	"quorumgate/internal/record/metrics"
	"quorumgate/internal/record/store/consumed"
	"quorumgate/internal/record/store/records"
	"quorumgate/internal/token"
	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/platform/sentinel"
	"quorumgate/pkg/requestcontext"
)

// TokenVerifier checks a Stage 1 token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Proposer opens consensus rounds. Satisfied by *consensus.Engine.
type Proposer interface {
	Propose(ctx context.Context, p *consensus.Proposal) (*consensus.Decision, error)
}

// Config tunes the coordinator. ReservationTTL bounds how long a consumed
// token hash is remembered; it only needs to outlive the token itself.
// RetryBudget is the number of extra consensus attempts after an abort; each
// attempt is a fresh proposal, never a reuse.
type Config struct {
	ReservationTTL  time.Duration
	RetryBudget     int
	MaxPayloadBytes int
}

// AuditEmitter receives trail events; satisfied by *audit.Publisher.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service is the Stage 2 coordinator bound to one node's engine and stores.
type Service struct {
	verifier TokenVerifier
	consumed consumed.Set
	records  records.Store
	proposer Proposer
	applier  *record.Applier
	idgen    domain.IDGenerator
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    AuditEmitter
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithAudit attaches the audit trail publisher.
func WithAudit(a AuditEmitter) Option {
	return func(s *Service) { s.audit = a }
}

func New(verifier TokenVerifier, consumedSet consumed.Set, recordStore records.Store, proposer Proposer, applier *record.Applier, idgen domain.IDGenerator, cfg Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		consumed: consumedSet,
		records:  recordStore,
		proposer: proposer,
		applier:  applier,
		idgen:    idgen,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("quorumgate/record"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store verifies the token, reserves it, and commits the data through a
// consensus round. The token is burned at the reservation step: a later abort
// does not un-burn it, and a second Store call with the same token is a
// replay no matter what the first one returned.
func (s *Service) Store(ctx context.Context, tokenString string, data []byte) (*record.PermanentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "stage2.store")
	defer span.End()

	requestID := requestcontext.RequestID(ctx)
	start := s.now()

	claims, err := s.verifier.Verify(tokenString)
	if err != nil {
		s.reject(ctx, requestID, err)
		return nil, err
	}
	subject, err := domain.ParseRequestID(claims.Subject)
	if err != nil {
		err = dErrors.New(dErrors.CodeTokenInvalid, "token subject is not a request id")
		s.reject(ctx, requestID, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("token.subject", subject.String()))

	if len(data) == 0 {
		err = dErrors.New(dErrors.CodeBadRequest, "record data must not be empty")
		s.reject(ctx, requestID, err)
		return nil, err
	}
	if s.cfg.MaxPayloadBytes > 0 && len(data) > s.cfg.MaxPayloadBytes {
		err = dErrors.Newf(dErrors.CodeBadRequest, "record data exceeds %d bytes", s.cfg.MaxPayloadBytes)
		s.reject(ctx, requestID, err)
		return nil, err
	}

	// Refuse before burning the token when the local log cannot take another
	// leaf anyway; the per-node acceptor enforces the same bound during the
	// round.
	if s.applier != nil && s.applier.AtCapacity() {
		err = dErrors.New(dErrors.CodeCapacityExhausted, "record log is at capacity")
		s.reject(ctx, requestID, err)
		return nil, err
	}

	tokenHash := token.Hash(tokenString)
	if err := s.consumed.Reserve(ctx, token.HashString(tokenString), s.cfg.ReservationTTL); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			err = dErrors.New(dErrors.CodeTokenReplay, "token has already been used")
		} else {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "token reservation failed")
		}
		s.reject(ctx, requestID, err)
		return nil, err
	}

	rec, err := s.commit(ctx, subject, tokenHash, data)
	if err != nil {
		s.reject(ctx, requestID, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementStore("committed")
		s.metrics.RecordCommitted(rec.Proof.TreeSize)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "record stored",
			"request_id", requestID,
			"record_id", rec.ID,
			"leaf_index", rec.LeafIndex,
			"duration_ms", s.now().Sub(start).Milliseconds(),
		)
	}
	if s.audit != nil {
		s.audit.Emit(ctx, audit.Event{
			Kind:       audit.KindCommit,
			RequestID:  requestID,
			ProposalID: rec.ProposalID.String(),
			RecordID:   rec.ID.String(),
		})
	}
	return rec, nil
}

// commit runs consensus rounds until one commits or the retry budget is
// exhausted. Every attempt is a brand-new proposal with its own identity.
func (s *Service) commit(ctx context.Context, subject domain.RequestID, tokenHash [32]byte, data []byte) (*record.PermanentRecord, error) {
	attempts := 1 + s.cfg.RetryBudget
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		recordID := s.idgen.NewRecordID()
		payload, err := record.EncodePayload(record.Payload{
			RecordID:  recordID.String(),
			RequestID: subject.String(),
			Data:      data,
		})
		if err != nil {
			return nil, err
		}

		proposal := &consensus.Proposal{
			ID:        s.idgen.NewProposalID(),
			Kind:      consensus.KindRecord,
			Payload:   payload,
			TokenHash: tokenHash,
			Timestamp: s.now().UTC(),
		}

		roundStart := s.now()
		_, err = s.proposer.Propose(ctx, proposal)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ObserveRound("aborted", s.now().Sub(roundStart))
			}
			if dErrors.HasCode(err, dErrors.CodeConsensusAbort) && ctx.Err() == nil {
				lastErr = err
				if s.logger != nil {
					s.logger.WarnContext(ctx, "consensus round aborted",
						"proposal_id", proposal.ID,
						"attempt", attempt+1,
						"attempts", attempts,
					)
				}
				continue
			}
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ObserveRound("committed", s.now().Sub(roundStart))
		}

		rec, err := s.records.GetByProposal(ctx, proposal.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// The cluster committed but our local apply failed; the
				// engine already logged the apply error.
				return nil, dErrors.New(dErrors.CodeInternal, "commit not applied locally")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load committed record")
		}
		return rec, nil
	}
	return nil, lastErr
}

// Record serves the read path: any node can return a committed record with
// the proof it was stored with.
func (s *Service) Record(ctx context.Context, id domain.RecordID) (*record.PermanentRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load record")
	}
	return rec, nil
}

// Root reports this node's current tree head and size.
func (s *Service) Root(_ context.Context) (merkle.Root, uint64) {
	return s.applier.Root()
}

// ProposeMembership runs a membership change through consensus. The change
// takes effect only on commit, on every node, against the versioned set.
func (s *Service) ProposeMembership(ctx context.Context, change consensus.MembershipChange) error {
	payload, err := consensus.EncodeMembershipChange(&change)
	if err != nil {
		return err
	}
	proposal := &consensus.Proposal{
		ID:        s.idgen.NewProposalID(),
		Kind:      consensus.KindMembership,
		Payload:   payload,
		Timestamp: s.now().UTC(),
	}
	if _, err := s.proposer.Propose(ctx, proposal); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "membership change committed", "proposal_id", proposal.ID)
	}
	if s.audit != nil {
		s.audit.Emit(ctx, audit.Event{
			Kind:       audit.KindMembership,
			ProposalID: proposal.ID.String(),
		})
	}
	return nil
}

func (s *Service) reject(ctx context.Context, requestID string, err error) {
	if s.metrics != nil {
		s.metrics.IncrementStore(string(dErrors.CodeOf(err)))
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "store request rejected",
			"request_id", requestID,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
	}
	if s.audit != nil {
		s.audit.Emit(ctx, audit.Event{
			Kind:      audit.KindRejection,
			RequestID: requestID,
			Reason:    string(dErrors.CodeOf(err)),
		})
	}
}
