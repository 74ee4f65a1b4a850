package merkle

import "bytes"

// Proof is a logarithmic-size set of sibling hashes proving a leaf's
// inclusion under the root of the tree at TreeSize leaves. A proof is bound
// to the (LeafIndex, TreeSize) pair it was generated for; appending more
// leaves never invalidates it against the root it was issued with.
type Proof struct {
	LeafIndex uint64   `json:"leaf_index"`
	TreeSize  uint64   `json:"tree_size"`
	Path      [][]byte `json:"path"`
}

// VerifyInclusion recomputes the root bottom-up from the leaf data and the
// proof path and compares it with the expected root. It returns false with a
// nil error for a well-formed proof that simply does not match, and a
// MalformedProofError when the proof structure is inconsistent.
func VerifyInclusion(data []byte, proof *Proof, expected Root) (bool, error) {
	if proof == nil || proof.TreeSize == 0 || proof.LeafIndex >= proof.TreeSize {
		return false, newMalformedProofError("leaf index outside tree bounds")
	}

	// RFC 6962 inclusion verification: walk the path from the leaf upward,
	// using the index bits to decide branching direction.
	fn := proof.LeafIndex
	sn := proof.TreeSize - 1
	current := leafHash(data)

	for _, sibling := range proof.Path {
		if len(sibling) != 32 {
			return false, newMalformedProofError("sibling hash has wrong length")
		}
		if sn == 0 {
			return false, newMalformedProofError("proof path longer than tree depth")
		}
		var sib [32]byte
		copy(sib[:], sibling)

		if fn%2 == 1 || fn == sn {
			current = nodeHash(sib, current)
			if fn%2 == 0 {
				for fn%2 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			current = nodeHash(current, sib)
		}
		fn >>= 1
		sn >>= 1
	}

	if sn != 0 {
		return false, newMalformedProofError("proof path shorter than tree depth")
	}
	return bytes.Equal(current[:], expected[:]), nil
}
