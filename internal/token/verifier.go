package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "quorumgate/pkg/domain-errors"
)

// Verifier checks token signature, expiry, and binding. It holds no mutable
// state beyond the shared keyring; replay prevention is Stage 2's job.
type Verifier struct {
	keyring  *Keyring
	issuer   string
	audience string
	now      func() time.Time
}

func NewVerifier(keyring *Keyring, issuer, audience string, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{keyring: keyring, issuer: issuer, audience: audience, now: now}
}

// Verify parses and validates a signed token, returning its claims.
// All failures surface as token_invalid with a reason; expired tokens are
// permanently invalid regardless of signature validity.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "token has expired")
		case errors.Is(err, ErrNoSigningKey), errors.Is(err, errUnknownKey):
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "token signed by unknown key")
		default:
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "token signature invalid")
		}
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token is not valid")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "unexpected claims shape")
	}
	if claims.SchemaVersion != SchemaVersion {
		return nil, dErrors.Newf(dErrors.CodeTokenInvalid, "unsupported token schema version %d", claims.SchemaVersion)
	}
	if claims.Subject == "" || claims.ValidationDigest == "" {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token missing binding claims")
	}
	return claims, nil
}

var errUnknownKey = errors.New("unknown key id")

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errUnknownKey
	}
	pub, ok := v.keyring.PublicKey(kid)
	if !ok {
		return nil, errUnknownKey
	}
	return pub, nil
}
