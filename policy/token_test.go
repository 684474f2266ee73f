// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestTokenParser(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("valid signed token", func(t *testing.T) {
		parser := NewTokenParser(secret)
		token := signToken(t, secret, SessionClaims{
			SessionID: "sess-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		sessionID, err := parser.SessionID(token)
		if err != nil {
			t.Fatalf("SessionID failed: %v", err)
		}
		if sessionID != "sess-1" {
			t.Errorf("Expected sess-1, got %s", sessionID)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		parser := NewTokenParser(secret)
		token := signToken(t, []byte("other-secret"), SessionClaims{SessionID: "sess-1"})

		if _, err := parser.SessionID(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		parser := NewTokenParser(secret)
		token := signToken(t, secret, SessionClaims{
			SessionID: "sess-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})

		if _, err := parser.SessionID(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("missing sid claim rejected", func(t *testing.T) {
		parser := NewTokenParser(secret)
		token := signToken(t, secret, SessionClaims{})

		if _, err := parser.SessionID(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("no secret treats token as session ID", func(t *testing.T) {
		parser := NewTokenParser(nil)
		sessionID, err := parser.SessionID("sess-raw")
		if err != nil {
			t.Fatalf("SessionID failed: %v", err)
		}
		if sessionID != "sess-raw" {
			t.Errorf("Expected sess-raw, got %s", sessionID)
		}
	})

	t.Run("empty token rejected", func(t *testing.T) {
		parser := NewTokenParser(nil)
		if _, err := parser.SessionID(""); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})
}
