package audit

import "time"

// Kind classifies audit events.
type Kind string

const (
	KindEquivocation Kind = "equivocation"
	KindCommit       Kind = "commit"
	KindRejection    Kind = "rejection"
	KindMembership   Kind = "membership_change"
)

// Event is emitted from domain logic to capture security-relevant actions.
// IDs are carried in canonical string form; the event is write-only, so
// sinks never need to parse them back.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Kind       Kind           `json:"kind"`
	RequestID  string         `json:"request_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	ProposalID string         `json:"proposal_id,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Evidence   []VoteEvidence `json:"evidence,omitempty"`
}

// VoteEvidence is one signed vote carried in an equivocation event,
// hex-encoded so the conflict stays verifiable against the node's public key
// without this package's types.
type VoteEvidence struct {
	Phase        string `json:"phase"`
	ProposalHash string `json:"proposal_hash"`
	Signature    string `json:"signature"`
}
