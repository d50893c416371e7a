package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jmerrifield20/wtomax/internal/custody"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned by Authenticate for an unknown address or a
// wrong secret. The two cases are not distinguished.
var ErrBadCredentials = errors.New("invalid address or secret")

// Credentials maps caller addresses to bcrypt secret hashes.
type Credentials struct {
	mu     sync.RWMutex
	hashes map[custody.Address][]byte
}

// NewCredentials builds a credential set from address -> bcrypt hash pairs
// as they appear in configuration.
func NewCredentials(hashes map[string]string) (*Credentials, error) {
	c := &Credentials{hashes: make(map[custody.Address][]byte, len(hashes))}
	for addr, hash := range hashes {
		a, err := custody.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("credentials for %s: %w", a, err)
		}
		c.hashes[a] = []byte(hash)
	}
	return c, nil
}

// Set stores a new secret for a, hashing it with bcrypt.
func (c *Credentials) Set(a custody.Address, secret string) error {
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.hashes[a] = []byte(hash)
	c.mu.Unlock()
	return nil
}

// Authenticate checks secret against the stored hash for a.
func (c *Credentials) Authenticate(a custody.Address, secret string) error {
	c.mu.RLock()
	hash, ok := c.hashes[a]
	c.mu.RUnlock()
	if !ok {
		// Uniform timing for unknown addresses.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// Len returns the number of known callers.
func (c *Credentials) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hashes)
}

// HashSecret returns the bcrypt hash of secret at the default cost.
func HashSecret(secret string) (string, error) {
	if len(secret) < 8 {
		return "", fmt.Errorf("secret must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("wtomax-placeholder"), bcrypt.MinCost)
