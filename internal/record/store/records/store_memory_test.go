package records

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/internal/merkle"
	"quorumgate/internal/record"
	"quorumgate/pkg/domain"
	"quorumgate/pkg/platform/sentinel"
)

func sampleRecord() *record.PermanentRecord {
	return &record.PermanentRecord{
		ID:         domain.RecordID(uuid.New()),
		ProposalID: domain.ProposalID(uuid.New()),
		RequestID:  domain.RequestID(uuid.New()),
		Data:       []byte(`{"kind":"login"}`),
		TokenHash:  "deadbeef",
		LeafIndex:  0,
		Root:       merkle.Root{1, 2, 3},
		Proof: &merkle.Proof{
			LeafIndex: 0,
			TreeSize:  1,
			Path:      [][]byte{},
		},
		CommitTimestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ContributingVotes: []record.VoteAttestation{
			{NodeID: domain.NodeID(uuid.New()), ProposalHash: []byte{9}, Signature: []byte{8}},
		},
	}
}

func TestMemoryStoreAppendAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Append(ctx, rec))

	byID, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byID.ID)
	assert.Equal(t, rec.Data, byID.Data)
	assert.Len(t, byID.ContributingVotes, 1)

	byProposal, err := s.GetByProposal(ctx, rec.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byProposal.ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestMemoryStoreRejectsDuplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Append(ctx, rec))
	assert.ErrorIs(t, s.Append(ctx, rec), sentinel.ErrConflict)

	// Same proposal under a fresh record ID is still a conflict: one
	// proposal commits exactly one record.
	dup := sampleRecord()
	dup.ProposalID = rec.ProposalID
	assert.ErrorIs(t, s.Append(ctx, dup), sentinel.ErrConflict)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetByID(ctx, domain.RecordID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = s.GetByProposal(ctx, domain.ProposalID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, s.Append(ctx, rec))

	// Mutating the caller's copy after Append must not reach the store.
	rec.Data[0] = 'X'

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), got.Data[0])

	// Mutating a read result must not poison later reads.
	got.Data[0] = 'Y'
	again, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.Data[0])
}
