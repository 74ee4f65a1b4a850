package validation

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// Digest condenses a set of outcomes into a hash that a token can be bound
// to, so Stage 2 can later confirm what was validated, not just that
// validation happened. Outcomes are folded in validator-name order, making the
// digest independent of completion order.
func Digest(outcomes []Outcome) [32]byte {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Validator < sorted[j].Validator
	})

	h := sha256.New()
	for _, out := range sorted {
		fmt.Fprintf(h, "%s|%t|%.6f\n", out.Validator, out.Passed, out.Score)
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
