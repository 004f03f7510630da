package confirmation

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims is the expected claim shape of an admin-approval token: a
// subject identifying the approver and a fixed "scope" claim.
type AdminClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// RequiredScope is the scope claim an admin-approval token must carry.
const RequiredScope = "dbagent:admin-approve"

// ErrInvalidAdminToken is returned when a token fails signature, expiry, or
// scope verification.
var ErrInvalidAdminToken = errors.New("confirmation: invalid admin approval token")

// AdminVerifier validates admin-approval JWTs against a fixed HMAC key.
// Binding AdminApproval to a verifiable credential rather than a bare
// boolean keeps the highest confirmation tier from degrading into Simple
// approval under casual misuse.
type AdminVerifier struct {
	key []byte
}

// NewAdminVerifier constructs a verifier over the given HMAC signing key.
func NewAdminVerifier(key []byte) *AdminVerifier {
	return &AdminVerifier{key: key}
}

// Verify parses and validates tokenString, returning the approving
// subject's identifier on success.
func (v *AdminVerifier) Verify(tokenString string) (subject string, err error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method.Alg())
		}
		return v.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAdminToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidAdminToken
	}
	if claims.Scope != RequiredScope {
		return "", ErrInvalidAdminToken
	}
	return claims.Subject, nil
}
