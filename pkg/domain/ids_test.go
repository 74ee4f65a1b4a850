package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "quorumgate/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant shared by all ID
// types: IDs must be valid, non-empty, non-nil UUIDs.
func TestParseID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty string", "", true},
		{"invalid format", "not-a-uuid", true},
		{"nil uuid", uuid.Nil.String(), true},
		{"path traversal", "../../../etc/passwd", true},
		{"oversized input", strings.Repeat("a", 1000), true},
		{"valid lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
		{"valid uppercase", "550E8400-E29B-41D4-A716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errReq := ParseRequestID(tt.input)
			_, errRec := ParseRecordID(tt.input)
			_, errNode := ParseNodeID(tt.input)

			if tt.wantErr {
				require.Error(t, errReq)
				require.Error(t, errRec)
				require.Error(t, errNode)
				assert.True(t, dErrors.HasCode(errReq, dErrors.CodeBadRequest))
			} else {
				require.NoError(t, errReq)
				require.NoError(t, errRec)
				require.NoError(t, errNode)
			}
		})
	}
}

// TestTypeDistinction verifies the compiler enforces ID type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	requestID := RequestID(uuid.New())
	proposalID := ProposalID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ RequestID = proposalID  // compile error
	// var _ ProposalID = requestID  // compile error

	assert.NotEqual(t, uuid.UUID(requestID), uuid.UUID(proposalID))
}

func TestUUIDGeneratorDistinct(t *testing.T) {
	var g UUIDGenerator
	assert.NotEqual(t, g.NewProposalID(), g.NewProposalID())
	assert.NotEqual(t, g.NewRecordID(), g.NewRecordID())
}
