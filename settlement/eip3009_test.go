// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func validAuthorization() *Authorization {
	return &Authorization{
		From:        testPayer.Hex(),
		To:          testTreasury.Hex(),
		Value:       "1000000",
		ValidAfter:  "0",
		ValidBefore: "9999999999",
		Nonce:       crypto.Keccak256Hash([]byte("nonce-1")).Hex(),
		Signature:   hexutil.Encode(make([]byte, 65)),
	}
}

func TestParseAuthorization(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Authorization)
	}{
		{"bad payer address", func(a *Authorization) { a.From = "not-an-address" }},
		{"bad recipient address", func(a *Authorization) { a.To = "0x123" }},
		{"zero value", func(a *Authorization) { a.Value = "0" }},
		{"non-numeric value", func(a *Authorization) { a.Value = "1.5" }},
		{"short nonce", func(a *Authorization) { a.Nonce = "0x01" }},
		{"short signature", func(a *Authorization) { a.Signature = "0x0102" }},
		{"bad validBefore", func(a *Authorization) { a.ValidBefore = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := validAuthorization()
			tt.mutate(auth)
			if _, _, err := parseAuthorization(auth); err == nil {
				t.Error("Expected parse error")
			}
		})
	}

	t.Run("valid payload", func(t *testing.T) {
		parsed, sig, err := parseAuthorization(validAuthorization())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if parsed.From != testPayer || parsed.To != testTreasury {
			t.Error("Unexpected parsed addresses")
		}
		if parsed.Value.Cmp(big.NewInt(1_000_000)) != 0 {
			t.Errorf("Unexpected value: %s", parsed.Value)
		}
		if len(sig) != 65 {
			t.Errorf("Unexpected signature length: %d", len(sig))
		}
	})

	t.Run("nil authorization", func(t *testing.T) {
		if _, _, err := parseAuthorization(nil); err == nil {
			t.Error("Expected error for nil authorization")
		}
	})
}

func TestPaymentHash(t *testing.T) {
	base, _, err := parseAuthorization(validAuthorization())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	same, _, _ := parseAuthorization(validAuthorization())
	if paymentHash(base) != paymentHash(same) {
		t.Error("Expected identical authorizations to derive the same payment hash")
	}

	differentNonce := validAuthorization()
	differentNonce.Nonce = crypto.Keccak256Hash([]byte("nonce-2")).Hex()
	other, _, _ := parseAuthorization(differentNonce)
	if paymentHash(base) == paymentHash(other) {
		t.Error("Expected a different nonce to derive a different payment hash")
	}

	differentValue := validAuthorization()
	differentValue.Value = "2000000"
	other, _, _ = parseAuthorization(differentValue)
	if paymentHash(base) == paymentHash(other) {
		t.Error("Expected a different value to derive a different payment hash")
	}
}
