package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/wtomax/internal/custody"
)

// CallerClaims are the JWT claims of a caller token. Subject is the caller
// address in 0x hex form.
type CallerClaims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// Caller parses the address carried by the claims.
func (c *CallerClaims) Caller() (custody.Address, error) {
	return custody.ParseAddress(c.Address)
}

// CallerTokenIssuer issues and verifies RS256 caller tokens.
type CallerTokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewCallerTokenIssuer creates a CallerTokenIssuer.
//
//	issuerURL is the "iss" claim value, normally the custodyd base URL.
//	ttl is the token lifetime (default: 1 hour).
func NewCallerTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *CallerTokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &CallerTokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed token for caller.
func (t *CallerTokenIssuer) Issue(caller custody.Address) (string, time.Time, error) {
	if caller.IsZero() {
		return "", time.Time{}, custody.ErrInvalidAddress
	}
	now := time.Now().UTC()
	exp := now.Add(t.ttl)
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   caller.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Address: caller.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign caller token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates a caller token.
func (t *CallerTokenIssuer) Verify(tokenStr string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&CallerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.pub, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify caller token: %w", err)
	}
	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid caller token claims")
	}
	if claims.Subject != claims.Address {
		return nil, fmt.Errorf("caller token subject does not match address")
	}
	return claims, nil
}

// PublicKey returns the verification key.
func (t *CallerTokenIssuer) PublicKey() *rsa.PublicKey { return t.pub }

// PublicKeyPEM returns the verification key as PKIX PEM.
func (t *CallerTokenIssuer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(t.pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// TTL returns the configured token lifetime.
func (t *CallerTokenIssuer) TTL() time.Duration { return t.ttl }
