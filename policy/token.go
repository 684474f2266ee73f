// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// TokenParser resolves session tokens to session IDs. When an HMAC secret is
// configured, tokens must be valid HS256 JWTs carrying a "sid" claim; without
// a secret the token is treated as a bare session ID, which keeps local
// development and tests working without key material.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a parser with an explicit secret. A nil or empty
// secret disables JWT verification.
func NewTokenParser(secret []byte) *TokenParser {
	return &TokenParser{secret: secret}
}

// NewTokenParserFromEnv creates a parser from the SESSION_JWT_SECRET
// environment variable.
func NewTokenParserFromEnv() *TokenParser {
	secret := os.Getenv("SESSION_JWT_SECRET")
	if secret == "" {
		return &TokenParser{}
	}
	return &TokenParser{secret: []byte(secret)}
}

// SessionID extracts the session ID from a token.
func (p *TokenParser) SessionID(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if len(p.secret) == 0 {
		return token, nil
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.SessionID == "" {
		return "", fmt.Errorf("%w: missing sid claim", ErrInvalidToken)
	}

	return claims.SessionID, nil
}
