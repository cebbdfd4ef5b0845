package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	users  UserStore
	tokens *TokenManager
}

func NewService(users UserStore, tokens *TokenManager) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates a new user and returns it with a freshly minted access
// token. No refresh token is issued at registration; the first refresh
// requires a real login. Duplicate emails are rejected before any hashing
// work.
func (s *Service) Register(ctx context.Context, name, email, password string) (User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return User{}, "", ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, name, email, string(hash))
	if err != nil {
		return User{}, "", err
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return User{}, "", err
	}

	return user, access, nil
}

// Login verifies the credentials and mints one access and one refresh token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (User, TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, TokenPair{}, ErrInvalidCredentials
		}
		return User{}, TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return User{}, TokenPair{}, err
	}

	return user, TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid refresh token for a brand-new access token bound
// to the same subject. The refresh token itself is not rotated: it stays
// valid until its own expiry, and only a fresh login replaces it.
func (s *Service) Refresh(refreshToken string) (string, error) {
	subject, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	return s.tokens.IssueAccess(subject)
}
