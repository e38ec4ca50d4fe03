// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package auth verifies the bearer credentials presented during the relay
// handshake. Tokens are issued by the authentication collaborator (the REST
// login flow); the relay only needs to verify them and extract the identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/investlink/relay/internal/config"
)

// ErrInvalidToken is returned for any token that fails verification:
// expired, tampered, malformed, or signed with an unexpected algorithm.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified user identity bound to a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// TokenVerifier verifies a bearer credential and returns the identity it
// was issued to. Implementations must treat every failure as ErrInvalidToken
// material; callers do not distinguish failure modes.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Claims represents the JWT claims carried by relay session tokens.
type Claims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

// JWTManager creates and verifies HMAC-SHA256 session tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a JWT token manager from the security configuration.
// The secret must be at least 32 characters.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}, nil
}

// GenerateToken creates a signed token for the given identity. The relay
// uses this for tooling and tests; production tokens come from the
// authentication collaborator, which shares the signing secret.
func (m *JWTManager) GenerateToken(userID, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify implements TokenVerifier. It checks the signature, the HS256
// algorithm (rejecting algorithm-confusion attempts), and the time claims,
// then returns the embedded identity.
func (m *JWTManager) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}
