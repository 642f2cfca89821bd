package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	domuser "example.com/cartsync/internal/domain/user"
)

// BcryptChecker verifies account passwords against bcrypt hashes.
type BcryptChecker struct {
	decoy []byte
}

// NewBcryptChecker prepares a decoy hash at cost so that checks for unknown
// accounts take as long as real ones. A cost out of bcrypt's range falls
// back to bcrypt.DefaultCost.
func NewBcryptChecker(cost int) (*BcryptChecker, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("cartsync-decoy"), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt decoy: %w", err)
	}
	return &BcryptChecker{decoy: decoy}, nil
}

// Check compares password with hash. An empty hash is compared against the
// decoy and always fails.
func (c *BcryptChecker) Check(hash string, password string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(c.decoy, []byte(password))
		return domuser.ErrUnauthorized
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domuser.ErrUnauthorized
	default:
		return fmt.Errorf("bcrypt: %w", err)
	}
}
