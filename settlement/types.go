// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"time"

	"payrail/platform/shared/types"
)

// Authorization is a signed EIP-3009 transferWithAuthorization payload
// submitted on the gasless path. All numeric fields are decimal strings in
// the token's smallest unit; Nonce is a 32-byte hex string.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// SettleRequest is the body of POST /api/v1/settle. Exactly one of TxHash or
// Authorization must be set.
type SettleRequest struct {
	TenantID   string        `json:"tenant_id"`
	RequestID  string        `json:"request_id,omitempty"`
	DecisionID string        `json:"decision_id,omitempty"`
	Network    types.Network `json:"network"`
	Asset      string        `json:"asset,omitempty"`
	// Amount is the expected payment in the asset's display unit (e.g. "1.50").
	Amount        string         `json:"amount"`
	TxHash        string         `json:"tx_hash,omitempty"`
	Authorization *Authorization `json:"authorization,omitempty"`
}

// Receipt describes a verified or executed settlement.
type Receipt struct {
	TxHash         string    `json:"tx_hash"`
	VerifiedAmount string    `json:"verified_amount,omitempty"`
	Asset          string    `json:"asset,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SettleResponse is returned on a successful settlement.
type SettleResponse struct {
	Settled       bool    `json:"settled"`
	FacilitatorID string  `json:"facilitator_id,omitempty"`
	Payer         string  `json:"payer,omitempty"`
	Receipt       Receipt `json:"receipt"`
}

// ClaimStatus tracks a settlement claim's lifecycle.
type ClaimStatus string

const (
	// ClaimStatusPending marks an in-flight settlement attempt.
	ClaimStatusPending ClaimStatus = "pending"
	// ClaimStatusSettled marks a completed settlement. Settled claims are
	// permanent and never released.
	ClaimStatusSettled ClaimStatus = "settled"
)

// Claim records exclusive ownership of a transaction identifier.
type Claim struct {
	TxID      string      `json:"tx_id"`
	RequestID string      `json:"request_id"`
	TenantID  string      `json:"tenant_id"`
	Amount    string      `json:"amount"`
	Asset     string      `json:"asset"`
	Status    ClaimStatus `json:"status"`
	ClaimedAt time.Time   `json:"claimed_at"`
}

// EventStatus is the outcome recorded in a settlement event.
type EventStatus string

const (
	EventStatusSettled EventStatus = "settled"
	EventStatusError   EventStatus = "error"
)

// Event is an append-only settlement audit record. Rows are never mutated
// after insert.
type Event struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	RequestID      string      `json:"request_id"`
	TxHash         string      `json:"tx_hash"`
	Status         EventStatus `json:"status"`
	VerifiedAmount string      `json:"verified_amount,omitempty"`
	Asset          string      `json:"asset,omitempty"`
	Payer          string      `json:"payer,omitempty"`
	ErrorCode      string      `json:"error_code,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	Steps          []string    `json:"steps,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
