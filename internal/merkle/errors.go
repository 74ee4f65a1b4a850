package merkle

import (
	"errors"
	"fmt"
)

// ErrBadDepth is returned for tree depths outside the supported range.
var ErrBadDepth = errors.New("tree depth must be between 1 and 62")

// MalformedProofError is returned when the proof structure itself is
// inconsistent (wrong hash length, path too long or short). A structurally
// sound proof that fails to match the root is not malformed; VerifyInclusion
// reports that as a plain false.
type MalformedProofError struct {
	msg string
}

func newMalformedProofError(format string, args ...any) *MalformedProofError {
	return &MalformedProofError{msg: fmt.Sprintf(format, args...)}
}

func (e *MalformedProofError) Error() string {
	return "malformed proof: " + e.msg
}
