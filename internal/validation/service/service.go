// Package service implements the Stage 1 coordinator: it fans the configured
// validators out under a single deadline, aggregates their outcomes, and asks
// the token issuer for a token when everything passes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"quorumgate/internal/token"
	"quorumgate/internal/validation"
	"quorumgate/internal/validation/metrics"
	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/requestcontext"
)

// TokenIssuer mints a token for a request that passed validation.
type TokenIssuer interface {
	Issue(ctx context.Context, requestID domain.RequestID, validationDigest [32]byte) (*token.Issued, error)
}

// Config tunes the coordinator. Deadline bounds the whole validator fan-out;
// ClockSkew bounds how stale or future-dated a request timestamp may be.
type Config struct {
	MinValidators  int
	MaxValidators  int
	Deadline       time.Duration
	FraudThreshold float64
	ClockSkew      time.Duration
}

// Service is the Stage 1 coordinator. Stateless across requests, so it is
// horizontally scalable by construction.
type Service struct {
	validators []validation.Validator
	issuer     TokenIssuer
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

func New(validators []validation.Validator, issuer TokenIssuer, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if cfg.MinValidators > 0 && len(validators) < cfg.MinValidators {
		return nil, dErrors.Newf(dErrors.CodeInternal, "need at least %d validators, have %d", cfg.MinValidators, len(validators))
	}
	if cfg.MaxValidators > 0 && len(validators) > cfg.MaxValidators {
		return nil, dErrors.Newf(dErrors.CodeInternal, "at most %d validators allowed, have %d", cfg.MaxValidators, len(validators))
	}
	seen := make(map[string]struct{}, len(validators))
	for _, v := range validators {
		if _, dup := seen[v.Name()]; dup {
			return nil, dErrors.Newf(dErrors.CodeInternal, "duplicate validator name %q", v.Name())
		}
		seen[v.Name()] = struct{}{}
	}
	return &Service{
		validators: validators,
		issuer:     issuer,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("quorumgate/validation"),
	}, nil
}

// failedOutcome carries a failing validator verdict through the errgroup so
// the first failure cancels the remaining validators (cancellation is
// advisory; validators are not assumed cheaply interruptible).
type failedOutcome struct {
	outcome validation.Outcome
}

func (e *failedOutcome) Error() string {
	return "validator " + e.outcome.Validator + " rejected request: " + e.outcome.Detail
}

// Validate screens the request and mints a token on success. Fail-closed: a
// missed deadline, a failing validator, or an aggregate (minimum) score below
// the fraud threshold all reject the request.
func (s *Service) Validate(ctx context.Context, req validation.Request) (*token.Issued, error) {
	ctx, span := s.tracer.Start(ctx, "stage1.validate",
		trace.WithAttributes(attribute.String("request.id", req.ID.String())))
	defer span.End()

	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if err := s.checkFreshness(ctx, req); err != nil {
		s.reject(ctx, requestID, req, err, start)
		return nil, err
	}

	outcomes, err := s.runValidators(ctx, req)
	if err != nil {
		s.reject(ctx, requestID, req, err, start)
		return nil, err
	}

	// Aggregate score is the minimum, not the average: a single weak signal
	// cannot be masked by stuffing extra strong validators.
	aggregate := 1.0
	for _, out := range outcomes {
		if out.Score < aggregate {
			aggregate = out.Score
		}
	}
	if aggregate < s.cfg.FraudThreshold {
		err := dErrors.Newf(dErrors.CodeValidationFailure,
			"aggregate score %.2f below threshold %.2f", aggregate, s.cfg.FraudThreshold)
		s.reject(ctx, requestID, req, err, start)
		return nil, err
	}

	issued, err := s.issuer.Issue(ctx, req.ID, validation.Digest(outcomes))
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeIssuanceError) {
			err = dErrors.Wrap(err, dErrors.CodeIssuanceError, "token issuance failed")
		}
		s.reject(ctx, requestID, req, err, start)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementValidated("passed")
		s.metrics.IncrementTokensIssued()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "request validated",
			"request_id", requestID,
			"stage1_request_id", req.ID,
			"aggregate_score", aggregate,
			"validators", len(outcomes),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return issued, nil
}

func (s *Service) checkFreshness(ctx context.Context, req validation.Request) error {
	if req.ID.IsZero() {
		return dErrors.New(dErrors.CodeValidationFailure, "request id is required")
	}
	now := requestcontext.Now(ctx)
	if req.Timestamp.Before(now.Add(-s.cfg.ClockSkew)) {
		return dErrors.New(dErrors.CodeValidationFailure, "request timestamp too old")
	}
	if req.Timestamp.After(now.Add(s.cfg.ClockSkew)) {
		return dErrors.New(dErrors.CodeValidationFailure, "request timestamp too far in the future")
	}
	return nil
}

func (s *Service) runValidators(ctx context.Context, req validation.Request) ([]validation.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	outcomes := make([]validation.Outcome, len(s.validators))

	for i, v := range s.validators {
		g.Go(func() error {
			start := time.Now()
			out, err := v.Validate(ctx, req)
			if s.metrics != nil {
				s.metrics.ObserveValidatorLatency(v.Name(), time.Since(start))
			}
			if err != nil {
				return err
			}
			if out.Validator == "" {
				out.Validator = v.Name()
			}
			if !out.Passed {
				return &failedOutcome{outcome: out}
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var failed *failedOutcome
		switch {
		case errors.As(err, &failed):
			return nil, dErrors.Newf(dErrors.CodeValidationFailure,
				"validator %s rejected request: %s", failed.outcome.Validator, failed.outcome.Detail)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, dErrors.New(dErrors.CodeValidationFailure, "validation deadline exceeded")
		case errors.Is(err, context.Canceled):
			return nil, dErrors.Wrap(err, dErrors.CodeValidationFailure, "validation canceled")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeValidationFailure, "validator error")
		}
	}
	if err := ctx.Err(); err != nil {
		// The group finished but the deadline still elapsed; fail closed.
		return nil, dErrors.New(dErrors.CodeValidationFailure, "validation deadline exceeded")
	}
	return outcomes, nil
}

func (s *Service) reject(ctx context.Context, requestID string, req validation.Request, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.IncrementValidated(string(dErrors.CodeOf(err)))
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "request rejected",
			"request_id", requestID,
			"stage1_request_id", req.ID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
