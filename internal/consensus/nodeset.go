package consensus

import (
	"crypto/ed25519"
	"encoding/json"
	"sync"

	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

// Member is one registered peer in the consensus node set.
type Member struct {
	ID        domain.NodeID
	PublicKey ed25519.PublicKey
	Endpoint  string
	Active    bool
	// Flagged marks a node observed equivocating. Flagged nodes stay in the
	// membership (removal requires its own consensus round) but the mark is
	// surfaced to operators and auditors.
	Flagged bool
}

// NodeSet is the versioned membership list. It is shared by reference with
// every engine; mutation happens only through ApplyChange, which is invoked
// from the commit path of a membership proposal, never ad hoc.
type NodeSet struct {
	mu      sync.RWMutex
	version uint64
	members map[domain.NodeID]*Member
	order   []domain.NodeID
}

// NewNodeSet builds the initial membership. Every member needs an ID and a
// public key.
func NewNodeSet(members []Member) (*NodeSet, error) {
	s := &NodeSet{members: make(map[domain.NodeID]*Member, len(members))}
	for _, m := range members {
		if len(m.PublicKey) != ed25519.PublicKeySize {
			return nil, dErrors.Newf(dErrors.CodeInternal, "member %s has invalid public key", m.ID)
		}
		if _, dup := s.members[m.ID]; dup {
			return nil, dErrors.Newf(dErrors.CodeInternal, "duplicate member %s", m.ID)
		}
		copied := m
		s.members[m.ID] = &copied
		s.order = append(s.order, m.ID)
	}
	s.version = 1
	return s, nil
}

// Member looks up a member by ID.
func (s *NodeSet) Member(id domain.NodeID) (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// ActiveCount returns the number of active members.
func (s *NodeSet) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCountLocked()
}

func (s *NodeSet) activeCountLocked() int {
	n := 0
	for _, m := range s.members {
		if m.Active {
			n++
		}
	}
	return n
}

// F returns the maximum tolerated faulty nodes: floor((n_active - 1) / 3).
func (s *NodeSet) F() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.activeCountLocked()
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum returns the 2f+1 matching votes needed per phase.
func (s *NodeSet) Quorum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.activeCountLocked()
	if n == 0 {
		return 1
	}
	return 2*((n-1)/3) + 1
}

// Version returns the membership version, bumped by every applied change.
func (s *NodeSet) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of the membership in registration order.
func (s *NodeSet) Snapshot() (uint64, []Member) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.members[id])
	}
	return s.version, out
}

// Flag marks a member as an observed equivocator.
func (s *NodeSet) Flag(id domain.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[id]; ok {
		m.Flagged = true
	}
}

// MembershipChange is the payload of a KindMembership proposal.
type MembershipChange struct {
	Add        []MemberSpec    `json:"add,omitempty"`
	Activate   []domain.NodeID `json:"activate,omitempty"`
	Deactivate []domain.NodeID `json:"deactivate,omitempty"`
}

// MemberSpec is the wire form of a new member.
type MemberSpec struct {
	ID        string `json:"id"`
	PublicKey []byte `json:"public_key"`
	Endpoint  string `json:"endpoint"`
}

// EncodeMembershipChange serializes a membership change for a proposal.
func EncodeMembershipChange(change *MembershipChange) ([]byte, error) {
	b, err := json.Marshal(change)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode membership change")
	}
	return b, nil
}

// DecodeMembershipChange parses a membership proposal payload.
func DecodeMembershipChange(payload []byte) (*MembershipChange, error) {
	var change MembershipChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed membership change")
	}
	return &change, nil
}

// ApplyChange applies a committed membership proposal and bumps the version
// when anything actually changed. A shared set is applied once per node's
// commit path, so re-applying an already-applied change is a no-op rather
// than a conflict. Callers outside a commit path must never invoke this.
func (s *NodeSet) ApplyChange(change *MembershipChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, spec := range change.Add {
		id, err := domain.ParseNodeID(spec.ID)
		if err != nil {
			return err
		}
		if len(spec.PublicKey) != ed25519.PublicKeySize {
			return dErrors.Newf(dErrors.CodeBadRequest, "member %s has invalid public key", spec.ID)
		}
		if existing, dup := s.members[id]; dup {
			if !existing.PublicKey.Equal(ed25519.PublicKey(spec.PublicKey)) {
				return dErrors.Newf(dErrors.CodeConflict, "member %s already registered with a different key", spec.ID)
			}
			continue
		}
		s.members[id] = &Member{
			ID:        id,
			PublicKey: ed25519.PublicKey(spec.PublicKey),
			Endpoint:  spec.Endpoint,
			Active:    true,
		}
		s.order = append(s.order, id)
		changed = true
	}
	for _, id := range change.Activate {
		m, ok := s.members[id]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "member %s not registered", id)
		}
		if !m.Active {
			m.Active = true
			changed = true
		}
	}
	for _, id := range change.Deactivate {
		m, ok := s.members[id]
		if !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "member %s not registered", id)
		}
		if m.Active {
			m.Active = false
			changed = true
		}
	}
	if changed {
		s.version++
	}
	return nil
}
