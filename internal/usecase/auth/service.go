package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domuser "example.com/cartsync/internal/domain/user"
)

// Session is what a verified bearer token tells the cart endpoints: whose
// cart to serve, and until when.
type Session struct {
	UserID    int64
	ExpiresAt time.Time
}

// PasswordChecker returns domuser.ErrUnauthorized on a mismatch. An empty
// hash must still cost a full check and fail.
type PasswordChecker interface {
	Check(hash string, password string) error
}

type TokenService interface {
	Issue(userID int64) (token string, expiresAt time.Time, err error)
	Verify(token string) (*Session, error)
}

type Service struct {
	users   domuser.Repository
	checker PasswordChecker
	tokens  TokenService
}

func NewService(users domuser.Repository, checker PasswordChecker, tokens TokenService) *Service {
	return &Service{
		users:   users,
		checker: checker,
		tokens:  tokens,
	}
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domuser.User
}

// Login issues the bearer token the cart endpoints expect. Unknown accounts
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, domuser.ErrInvalidCredential
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domuser.ErrUserNotFound) {
		_ = s.checker.Check("", in.Password)
		return nil, domuser.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := s.checker.Check(u.PasswordHash, in.Password); err != nil {
		if errors.Is(err, domuser.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("check password for user %d: %w", u.ID, err)
	}

	token, expiresAt, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      u,
	}, nil
}
