package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL = 15 * time.Minute
	refreshTTL       = 7 * 24 * time.Hour

	typeAccess  = "access"
	typeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenManager mints and verifies the two token kinds. Access and refresh
// tokens are signed with distinct secrets so one can never stand in for the
// other. No token is ever stored server-side: a valid signature plus an
// unexpired exp claim is the whole session state.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
}

func NewTokenManager(accessSecret, refreshSecret string) (*TokenManager, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt signing secrets must not be empty")
	}

	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
	}, nil
}

func (m *TokenManager) WithAccessTTL(ttl time.Duration) {
	if ttl > 0 {
		m.accessTTL = ttl
	}
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return refreshTTL
}

func (m *TokenManager) IssueAccess(subject string) (string, error) {
	return m.issue(subject, typeAccess, m.accessSecret, m.accessTTL)
}

func (m *TokenManager) IssueRefresh(subject string) (string, error) {
	return m.issue(subject, typeRefresh, m.refreshSecret, refreshTTL)
}

func (m *TokenManager) issue(subject, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": tokenType,
		// jti keeps two tokens minted within the same second distinct.
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return encoded, nil
}

// VerifyAccess returns the subject embedded in a valid access token.
// Any failure mode (bad signature, expired, malformed, wrong token type)
// collapses into ErrInvalidToken.
func (m *TokenManager) VerifyAccess(tokenStr string) (string, error) {
	return verify(tokenStr, typeAccess, m.accessSecret)
}

func (m *TokenManager) VerifyRefresh(tokenStr string) (string, error) {
	return verify(tokenStr, typeRefresh, m.refreshSecret)
}

func verify(tokenStr, wantType string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	if tokenType, _ := claims["typ"].(string); tokenType != wantType {
		return "", ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}
