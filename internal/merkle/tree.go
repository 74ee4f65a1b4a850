// Package merkle implements the append-only hash tree backing the permanent
// record log. Leaves are assigned monotonically increasing positions; there
// is no update or delete. Any two nodes that applied the same committed leaf
// sequence compute identical roots, which the node set uses as a cheap
// global-consistency check.
package merkle

import (
	"sync"

	"golang.org/x/crypto/blake2b"

	"quorumgate/pkg/platform/sentinel"
)

// Domain-separation prefixes so a leaf hash can never be confused with an
// interior hash (second-preimage hardening, RFC 6962 construction).
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// Root is the tree head hash.
type Root [32]byte

// Tree is an append-only Merkle tree over blake2b-256. Safe for concurrent
// use; appends are serialized (single-writer), reads take a shared lock.
type Tree struct {
	mu        sync.RWMutex
	leaves    [][32]byte
	maxLeaves uint64
}

// New builds an empty tree whose leaf capacity is 2^depth. Appends beyond
// capacity are rejected rather than silently wrapping.
func New(depth int) (*Tree, error) {
	if depth < 1 || depth > 62 {
		return nil, ErrBadDepth
	}
	return &Tree{maxLeaves: 1 << uint(depth)}, nil
}

// Append adds data as the next leaf and returns the new root together with an
// inclusion proof for that leaf against the new root.
func (t *Tree) Append(data []byte) (Root, *Proof, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint64(len(t.leaves)) >= t.maxLeaves {
		return Root{}, nil, sentinel.ErrCapacity
	}

	index := uint64(len(t.leaves))
	t.leaves = append(t.leaves, leafHash(data))

	size := uint64(len(t.leaves))
	proof := &Proof{
		LeafIndex: index,
		TreeSize:  size,
		Path:      t.pathLocked(index, 0, size),
	}
	return t.rootLocked(0, size), proof, nil
}

// Capacity returns the maximum number of leaves the tree accepts.
func (t *Tree) Capacity() uint64 {
	return t.maxLeaves
}

// Root returns the current tree head and leaf count. The zero Root is
// returned for an empty tree.
func (t *Tree) Root() (Root, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	size := uint64(len(t.leaves))
	if size == 0 {
		return Root{}, 0
	}
	return t.rootLocked(0, size), size
}

// Size returns the number of leaves.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.leaves))
}

// Prove regenerates an inclusion proof for the leaf at index against the
// current root. Proof generation is O(depth).
func (t *Tree) Prove(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := uint64(len(t.leaves))
	if index >= size {
		return nil, sentinel.ErrNotFound
	}
	return &Proof{
		LeafIndex: index,
		TreeSize:  size,
		Path:      t.pathLocked(index, 0, size),
	}, nil
}

// rootLocked computes the subtree hash over leaves [lo, hi). Interior nodes
// are pure hash-derived, so recomputation from leaves is always possible.
func (t *Tree) rootLocked(lo, hi uint64) Root {
	if hi-lo == 1 {
		return t.leaves[lo]
	}
	k := largestPowerOfTwoBelow(hi - lo)
	return nodeHash(t.rootLocked(lo, lo+k), t.rootLocked(lo+k, hi))
}

// pathLocked collects sibling hashes bottom-up for the leaf at index within
// the subtree [lo, hi).
func (t *Tree) pathLocked(index, lo, hi uint64) [][]byte {
	if hi-lo == 1 {
		return nil
	}
	k := largestPowerOfTwoBelow(hi - lo)
	if index < lo+k {
		path := t.pathLocked(index, lo, lo+k)
		sibling := t.rootLocked(lo+k, hi)
		return append(path, sibling[:])
	}
	path := t.pathLocked(index, lo+k, hi)
	sibling := t.rootLocked(lo, lo+k)
	return append(path, sibling[:])
}

func leafHash(data []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{leafPrefix})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(left, right [32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{nodePrefix})
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// largestPowerOfTwoBelow returns the largest power of two strictly less than
// n, for n >= 2.
func largestPowerOfTwoBelow(n uint64) uint64 {
	k := uint64(1)
	for k<<1 < n {
		k <<= 1
	}
	return k
}
