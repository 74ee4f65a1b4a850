package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"quorumgate/pkg/domain"
	dErrors "quorumgate/pkg/domain-errors"
)

// SchemaVersion is embedded in every token so the claim layout can evolve
// without breaking verifiers during key or schema rotation.
const SchemaVersion = 1

// ErrNoSigningKey is returned by the keyring when issuance is impossible.
var ErrNoSigningKey = errors.New("no signing key available")

// Claims is the signed content of a token. Subject carries the request ID the
// token is bound to; ValidationDigest binds it to the exact validation
// outcomes Stage 1 observed.
type Claims struct {
	SchemaVersion    int    `json:"ver"`
	ValidationDigest string `json:"vdg"`
	jwt.RegisteredClaims
}

// Issued is the result of minting a token.
type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

// Issuer mints short-lived tokens after Stage 1 passes.
type Issuer struct {
	keyring  *Keyring
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer constructs an issuer. now may be nil, in which case the wall
// clock is used; tests inject a fixed clock.
func NewIssuer(keyring *Keyring, issuer, audience string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{keyring: keyring, issuer: issuer, audience: audience, ttl: ttl, now: now}
}

// Issue signs a token bound to the request identity and validation digest.
// It fails with an issuance_error only when no signing key is available.
func (i *Issuer) Issue(_ context.Context, requestID domain.RequestID, validationDigest [32]byte) (*Issued, error) {
	kid, priv, err := i.keyring.Signer()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIssuanceError, "signing key unavailable")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		SchemaVersion:    SchemaVersion,
		ValidationDigest: hex.EncodeToString(validationDigest[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requestID.String(),
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(priv)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIssuanceError, "failed to sign token")
	}

	return &Issued{Token: signed, TokenID: claims.ID, ExpiresAt: expiresAt}, nil
}

// Hash returns the digest Stage 2 keys its consumed-token set by.
func Hash(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// HashString is Hash rendered as hex for store keys and audit events.
func HashString(token string) string {
	h := Hash(token)
	return hex.EncodeToString(h[:])
}
