package auth

import (
	"fmt"
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "moonshop"

// CustomClaims defines the data stored inside the JWT.
type CustomClaims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with a shared secret.
type TokenManager struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration, now: time.Now}
}

// Generate issues a token for the user valid for the configured duration.
func (m *TokenManager) Generate(user account.User) (string, error) {
	now := m.now()
	claims := &CustomClaims{
		UserID: int64(user.ID),
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Parse checks signature, algorithm and expiration.
func (m *TokenManager) Parse(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrUnauthenticated
	}
	return claims, nil
}

// Verify returns the user a token was issued for.
func (m *TokenManager) Verify(tokenString string) (chat.UserID, error) {
	claims, err := m.Parse(tokenString)
	if err != nil {
		return 0, err
	}
	return chat.UserID(claims.UserID), nil
}
