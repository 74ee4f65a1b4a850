package consumed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/platform/sentinel"
)

func TestMemorySetReserveOnce(t *testing.T) {
	s := NewMemorySet(nil)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "hash-a", time.Minute))

	err := s.Reserve(ctx, "hash-a", time.Minute)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

	// A different hash is unaffected.
	assert.NoError(t, s.Reserve(ctx, "hash-b", time.Minute))
}

func TestMemorySetReservationExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemorySet(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "hash-a", time.Minute))
	assert.ErrorIs(t, s.Reserve(ctx, "hash-a", time.Minute), sentinel.ErrAlreadyUsed)

	// Once the reservation outlives its TTL the hash is reusable. The token
	// it guarded has expired by then, so this cannot enable a replay.
	now = now.Add(time.Minute + time.Second)
	assert.NoError(t, s.Reserve(ctx, "hash-a", time.Minute))
}

func TestMemorySetPrunesExpiredEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemorySet(func() time.Time { return now })
	ctx := context.Background()

	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, s.Reserve(ctx, h, time.Minute))
	}

	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Reserve(ctx, "d", time.Minute))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.expires, 1)
}
