package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/platform/sentinel"
)

func TestNewRejectsBadDepth(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrBadDepth)
	_, err = New(63)
	assert.ErrorIs(t, err, ErrBadDepth)
	_, err = New(1)
	assert.NoError(t, err)
}

func TestAppendProveVerifyAcrossSizes(t *testing.T) {
	tree, err := New(10)
	require.NoError(t, err)

	var data [][]byte
	for i := 0; i < 20; i++ {
		data = append(data, fmt.Appendf(nil, "record-%d", i))
	}

	for i, d := range data {
		root, proof, err := tree.Append(d)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), proof.LeafIndex)
		assert.Equal(t, uint64(i+1), proof.TreeSize)

		ok, err := VerifyInclusion(d, proof, root)
		require.NoError(t, err)
		assert.True(t, ok, "fresh proof for leaf %d must verify", i)

		// Every earlier leaf must also prove against the current root.
		for j := 0; j <= i; j++ {
			p, err := tree.Prove(uint64(j))
			require.NoError(t, err)
			ok, err := VerifyInclusion(data[j], p, root)
			require.NoError(t, err)
			assert.True(t, ok, "leaf %d must verify at size %d", j, i+1)
		}
	}
}

func TestProofStableAgainstItsRoot(t *testing.T) {
	// A proof generated at append time stays valid against the root it was
	// issued with, no matter how many leaves come later.
	tree, err := New(8)
	require.NoError(t, err)

	root, proof, err := tree.Append([]byte("first"))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, _, err := tree.Append(fmt.Appendf(nil, "later-%d", i))
		require.NoError(t, err)
	}

	ok, err := VerifyInclusion([]byte("first"), proof, root)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeterministicRootForSameSequence(t *testing.T) {
	a, err := New(8)
	require.NoError(t, err)
	b, err := New(8)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		d := fmt.Appendf(nil, "leaf-%d", i)
		_, _, err := a.Append(d)
		require.NoError(t, err)
		_, _, err = b.Append(d)
		require.NoError(t, err)
	}

	rootA, sizeA := a.Root()
	rootB, sizeB := b.Root()
	assert.Equal(t, rootA, rootB, "same committed sequence must yield identical roots")
	assert.Equal(t, sizeA, sizeB)
}

func TestDifferentOrderDifferentRoot(t *testing.T) {
	a, err := New(4)
	require.NoError(t, err)
	b, err := New(4)
	require.NoError(t, err)

	_, _, _ = a.Append([]byte("x"))
	_, _, _ = a.Append([]byte("y"))
	_, _, _ = b.Append([]byte("y"))
	_, _, _ = b.Append([]byte("x"))

	rootA, _ := a.Root()
	rootB, _ := b.Root()
	assert.NotEqual(t, rootA, rootB)
}

func TestCapacityExhaustedRejectsAppend(t *testing.T) {
	tree, err := New(2)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, _, err := tree.Append(fmt.Appendf(nil, "%d", i))
		require.NoError(t, err)
	}

	_, _, err = tree.Append([]byte("overflow"))
	assert.ErrorIs(t, err, sentinel.ErrCapacity)
	assert.Equal(t, uint64(4), tree.Size(), "rejected append must not grow the tree")
}

func TestVerifyRejectsWrongData(t *testing.T) {
	tree, err := New(8)
	require.NoError(t, err)

	root, proof, err := tree.Append([]byte("real"))
	require.NoError(t, err)
	_, _, err = tree.Append([]byte("other"))
	require.NoError(t, err)

	ok, err := VerifyInclusion([]byte("forged"), proof, root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	tree, err := New(8)
	require.NoError(t, err)

	_, proof, err := tree.Append([]byte("a"))
	require.NoError(t, err)

	ok, err := VerifyInclusion([]byte("a"), proof, Root{0xFF})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsMalformedProof(t *testing.T) {
	tree, err := New(8)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, _, err := tree.Append(fmt.Appendf(nil, "%d", i))
		require.NoError(t, err)
	}
	root, _ := tree.Root()

	var mpe *MalformedProofError

	_, err = VerifyInclusion([]byte("0"), nil, root)
	require.ErrorAs(t, err, &mpe)

	p, err := tree.Prove(0)
	require.NoError(t, err)

	truncated := &Proof{LeafIndex: p.LeafIndex, TreeSize: p.TreeSize, Path: p.Path[:1]}
	_, err = VerifyInclusion([]byte("0"), truncated, root)
	require.ErrorAs(t, err, &mpe)

	badHash := &Proof{LeafIndex: p.LeafIndex, TreeSize: p.TreeSize, Path: [][]byte{{1, 2, 3}, {4, 5, 6}}}
	_, err = VerifyInclusion([]byte("0"), badHash, root)
	require.ErrorAs(t, err, &mpe)

	outOfRange := &Proof{LeafIndex: 10, TreeSize: 4, Path: p.Path}
	_, err = VerifyInclusion([]byte("0"), outOfRange, root)
	require.ErrorAs(t, err, &mpe)
}

func TestProveUnknownLeaf(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	_, err = tree.Prove(0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
