package records

import (
	"context"
	"sync"

	"quorumgate/internal/record"
	"quorumgate/pkg/domain"
	"quorumgate/pkg/platform/sentinel"
)

// MemoryStore is the in-memory record log used by the single-binary
// deployment and by tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[domain.RecordID]*record.PermanentRecord
	byProposal map[domain.ProposalID]domain.RecordID
	order      []domain.RecordID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[domain.RecordID]*record.PermanentRecord),
		byProposal: make(map[domain.ProposalID]domain.RecordID),
	}
}

func (s *MemoryStore) Append(_ context.Context, rec *record.PermanentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byID[rec.ID]; dup {
		return sentinel.ErrConflict
	}
	if _, dup := s.byProposal[rec.ProposalID]; dup {
		return sentinel.ErrConflict
	}

	cp := cloneRecord(rec)
	s.byID[rec.ID] = cp
	s.byProposal[rec.ProposalID] = rec.ID
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id domain.RecordID) (*record.PermanentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) GetByProposal(_ context.Context, id domain.ProposalID) (*record.PermanentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, ok := s.byProposal[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(s.byID[recordID]), nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.order)), nil
}

// cloneRecord copies the record so callers cannot mutate the stored entry.
func cloneRecord(rec *record.PermanentRecord) *record.PermanentRecord {
	cp := *rec
	cp.Data = append([]byte(nil), rec.Data...)
	if rec.Proof != nil {
		proof := *rec.Proof
		proof.Path = make([][]byte, len(rec.Proof.Path))
		for i, step := range rec.Proof.Path {
			proof.Path[i] = append([]byte(nil), step...)
		}
		cp.Proof = &proof
	}
	cp.ContributingVotes = append([]record.VoteAttestation(nil), rec.ContributingVotes...)
	return &cp
}
