// Package domain defines typed identifiers shared across stages. Typed IDs
// prevent cross-type assignment at compile time: a RequestID can never be
// handed to an API expecting a ProposalID.
package domain

import (
	"github.com/google/uuid"

	dErrors "quorumgate/pkg/domain-errors"
)

// RequestID identifies one logical client operation entering Stage 1.
// Reuse is only legal for idempotent retries of the same operation.
type RequestID uuid.UUID

// ProposalID identifies one consensus round input in Stage 2.
type ProposalID uuid.UUID

// RecordID identifies a committed permanent record.
type RecordID uuid.UUID

// NodeID identifies a member of the consensus node set.
type NodeID uuid.UUID

func (id RequestID) String() string  { return uuid.UUID(id).String() }
func (id ProposalID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id NodeID) String() string     { return uuid.UUID(id).String() }

// Text marshaling keeps the canonical UUID form on every wire surface
// (JSON payloads, stored attestations, log fields).

func (id RequestID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id ProposalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id RecordID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id NodeID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *RequestID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequestID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ProposalID) UnmarshalText(b []byte) error {
	parsed, err := ParseProposalID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RecordID) UnmarshalText(b []byte) error {
	parsed, err := ParseRecordID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *NodeID) UnmarshalText(b []byte) error {
	parsed, err := ParseNodeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id RequestID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ProposalID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the trust-boundary invariant shared by every ID type:
// IDs must be valid, non-empty, non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "id is not a valid uuid")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "id must not be the nil uuid")
	}
	return u, nil
}

// ParseRequestID parses the canonical string form of a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	return RequestID(u), err
}

// ParseProposalID parses the canonical string form of a ProposalID.
func ParseProposalID(s string) (ProposalID, error) {
	u, err := parseUUID(s)
	return ProposalID(u), err
}

// ParseRecordID parses the canonical string form of a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s)
	return RecordID(u), err
}

// ParseNodeID parses the canonical string form of a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	u, err := parseUUID(s)
	return NodeID(u), err
}

// IDGenerator produces new identifiers. Injected so tests can pin IDs instead
// of depending on nondeterministic randomness.
type IDGenerator interface {
	NewProposalID() ProposalID
	NewRecordID() RecordID
}

// UUIDGenerator is the production IDGenerator backed by random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewProposalID() ProposalID { return ProposalID(uuid.New()) }
func (UUIDGenerator) NewRecordID() RecordID     { return RecordID(uuid.New()) }
