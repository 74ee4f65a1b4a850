// Package records persists the committed record log. Implementations return
// platform sentinel errors; the service layer translates them into coded
// domain errors.
package records

import (
	"context"

	"quorumgate/internal/record"
	"quorumgate/pkg/domain"
)

// Store is the append-only committed-record log of one node.
type Store interface {
	// Append persists a committed record. A record or proposal ID that was
	// already appended yields sentinel.ErrConflict.
	Append(ctx context.Context, rec *record.PermanentRecord) error

	// GetByID returns a committed record, or sentinel.ErrNotFound.
	GetByID(ctx context.Context, id domain.RecordID) (*record.PermanentRecord, error)

	// GetByProposal returns the record committed for a proposal, or
	// sentinel.ErrNotFound.
	GetByProposal(ctx context.Context, id domain.ProposalID) (*record.PermanentRecord, error)

	// Count returns the number of committed records.
	Count(ctx context.Context) (uint64, error)
}
