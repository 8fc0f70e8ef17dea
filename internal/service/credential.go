package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Credential hashes and verifies secrets with bcrypt.
type Credential struct {
	cost int
	log  *zap.Logger
}

// NewCredential returns a Credential using the given bcrypt cost.
func NewCredential(cost int, log *zap.Logger) *Credential {
	return &Credential{cost: cost, log: log.Named("credential")}
}

// Hash returns a salted bcrypt hash of secret.  Each call yields a
// different string.
func (c *Credential) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password longer than 72 bytes", ErrInvalidInput)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether secret matches record.  It never fails: a record
// that is not a bcrypt hash is logged and treated as a mismatch.
func (c *Credential) Verify(secret, record string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(record), []byte(secret))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		c.log.Warn("malformed credential record", zap.Error(err))
	}
	return false
}
