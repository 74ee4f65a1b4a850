package token

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

const (
	testIssuer   = "quorumgate-test"
	testAudience = "quorumgate-store-test"
)

func newTestPair(t *testing.T, now func() time.Time) (*Issuer, *Verifier, *Keyring) {
	t.Helper()
	kr, err := NewKeyring(2)
	require.NoError(t, err)
	iss := NewIssuer(kr, testIssuer, testAudience, 5*time.Minute, now)
	ver := NewVerifier(kr, testIssuer, testAudience, now)
	return iss, ver, kr
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss, ver, _ := newTestPair(t, nil)
	reqID := domain.RequestID(uuid.New())
	digest := [32]byte{1, 2, 3}

	issued, err := iss.Issue(context.Background(), reqID, digest)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.NotEmpty(t, issued.TokenID)

	claims, err := ver.Verify(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, reqID.String(), claims.Subject)
	assert.Equal(t, SchemaVersion, claims.SchemaVersion)
	assert.Equal(t,
		"0102030000000000000000000000000000000000000000000000000000000000",
		claims.ValidationDigest)
}

func TestExpiredTokenIsPermanentlyInvalid(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	iss, ver, _ := newTestPair(t, now)
	issued, err := iss.Issue(context.Background(), domain.RequestID(uuid.New()), [32]byte{})
	require.NoError(t, err)

	// Still fresh.
	_, err = ver.Verify(issued.Token)
	require.NoError(t, err)

	// Past expiry: verification fails even though the signature is intact.
	clock = clock.Add(6 * time.Minute)
	_, err = ver.Verify(issued.Token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))

	// No resurrection: winding the verifier clock back is the only way the
	// token would pass again, and real verifiers never do that.
	clock = clock.Add(24 * time.Hour)
	_, err = ver.Verify(issued.Token)
	require.Error(t, err)
}

func TestRotatedKeyStillVerifies(t *testing.T) {
	iss, ver, kr := newTestPair(t, nil)
	issued, err := iss.Issue(context.Background(), domain.RequestID(uuid.New()), [32]byte{9})
	require.NoError(t, err)

	require.NoError(t, kr.Rotate())

	_, err = ver.Verify(issued.Token)
	require.NoError(t, err, "token signed by recently rotated key must verify")

	// Push the old key out of the ring entirely.
	require.NoError(t, kr.Rotate())
	require.NoError(t, kr.Rotate())

	_, err = ver.Verify(issued.Token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestForeignKeyRejected(t *testing.T) {
	issA, _, _ := newTestPair(t, nil)
	_, verB, _ := newTestPair(t, nil)

	issued, err := issA.Issue(context.Background(), domain.RequestID(uuid.New()), [32]byte{})
	require.NoError(t, err)

	_, err = verB.Verify(issued.Token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestTamperedTokenRejected(t *testing.T) {
	iss, ver, _ := newTestPair(t, nil)
	issued, err := iss.Issue(context.Background(), domain.RequestID(uuid.New()), [32]byte{})
	require.NoError(t, err)

	tampered := issued.Token[:len(issued.Token)-4] + "AAAA"
	_, err = ver.Verify(tampered)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestIssueFailsWithoutSigningKey(t *testing.T) {
	iss, _, kr := newTestPair(t, nil)
	kr.Revoke()

	_, err := iss.Issue(context.Background(), domain.RequestID(uuid.New()), [32]byte{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIssuanceError))
	assert.True(t, dErrors.Retryable(err), "issuance errors are retryable")
}

func TestHashStable(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	assert.Len(t, HashString("abc"), 64)
}
