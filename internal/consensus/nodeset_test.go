package consensus

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/domain"
)

func testMember(t *testing.T) Member {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return Member{ID: domain.NodeID(uuid.New()), PublicKey: pub, Active: true}
}

func testMembers(t *testing.T, n int) []Member {
	t.Helper()
	out := make([]Member, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, testMember(t))
	}
	return out
}

func TestFaultToleranceMath(t *testing.T) {
	cases := []struct {
		nodes  int
		f      int
		quorum int
	}{
		{1, 0, 1},
		{4, 1, 3},
		{7, 2, 5},
		{10, 3, 7},
		{19, 6, 13},
		{21, 6, 13},
	}
	for _, tc := range cases {
		set, err := NewNodeSet(testMembers(t, tc.nodes))
		require.NoError(t, err)
		assert.Equal(t, tc.f, set.F(), "f for %d nodes", tc.nodes)
		assert.Equal(t, tc.quorum, set.Quorum(), "quorum for %d nodes", tc.nodes)
	}
}

func TestQuorumHonorsOnlyActiveMembers(t *testing.T) {
	members := testMembers(t, 7)
	members[5].Active = false
	members[6].Active = false

	set, err := NewNodeSet(members)
	require.NoError(t, err)
	assert.Equal(t, 5, set.ActiveCount())
	assert.Equal(t, 1, set.F())
	assert.Equal(t, 3, set.Quorum())
}

func TestNewNodeSetRejectsBadInput(t *testing.T) {
	m := testMember(t)
	_, err := NewNodeSet([]Member{m, m})
	assert.Error(t, err, "duplicate members must be rejected")

	bad := testMember(t)
	bad.PublicKey = []byte{1, 2, 3}
	_, err = NewNodeSet([]Member{bad})
	assert.Error(t, err, "invalid public keys must be rejected")
}

func TestApplyChangeIsVersioned(t *testing.T) {
	set, err := NewNodeSet(testMembers(t, 4))
	require.NoError(t, err)
	require.Equal(t, uint64(1), set.Version())

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	newID := uuid.New()

	require.NoError(t, set.ApplyChange(&MembershipChange{
		Add: []MemberSpec{{ID: newID.String(), PublicKey: pub, Endpoint: "local://new"}},
	}))
	assert.Equal(t, uint64(2), set.Version())
	assert.Equal(t, 5, set.ActiveCount())

	// Every node's commit path applies the same change once; re-applying is
	// a no-op, not a conflict.
	require.NoError(t, set.ApplyChange(&MembershipChange{
		Add: []MemberSpec{{ID: newID.String(), PublicKey: pub, Endpoint: "local://new"}},
	}))
	assert.Equal(t, uint64(2), set.Version())
	assert.Equal(t, 5, set.ActiveCount())

	m, ok := set.Member(domain.NodeID(newID))
	require.True(t, ok)
	assert.True(t, m.Active)

	require.NoError(t, set.ApplyChange(&MembershipChange{
		Deactivate: []domain.NodeID{domain.NodeID(newID)},
	}))
	assert.Equal(t, uint64(3), set.Version())
	assert.Equal(t, 4, set.ActiveCount())

	err = set.ApplyChange(&MembershipChange{
		Activate: []domain.NodeID{domain.NodeID(uuid.New())},
	})
	assert.Error(t, err, "unknown members cannot be activated")
}

func TestFlagDoesNotChangeMembership(t *testing.T) {
	members := testMembers(t, 4)
	set, err := NewNodeSet(members)
	require.NoError(t, err)

	set.Flag(members[0].ID)

	m, ok := set.Member(members[0].ID)
	require.True(t, ok)
	assert.True(t, m.Flagged)
	assert.True(t, m.Active, "flagging must not deactivate; removal needs its own consensus round")
	assert.Equal(t, uint64(1), set.Version())
}
