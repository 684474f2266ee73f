// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"fmt"
	"net/http"
	"time"
)

// Settlement error codes surfaced to callers.
const (
	CodeReplayDetected            = "REPLAY_DETECTED"
	CodeVerificationFailed        = "VERIFICATION_FAILED"
	CodeNoTreasury                = "NO_TREASURY"
	CodeUnsupportedAsset          = "UNSUPPORTED_ASSET"
	CodeInvalidAuthorization      = "INVALID_AUTHORIZATION"
	CodePaymentVerificationFailed = "PAYMENT_VERIFICATION_FAILED"
	CodeFacilitatorNotConfigured  = "FACILITATOR_NOT_CONFIGURED"
	CodeInternal                  = "INTERNAL_ERROR"
)

// SettlementError is the typed error returned by Settle. Code and Status are
// stable API surface; RequestID correlates the failure with the caller's
// request (for REPLAY_DETECTED it is the ORIGINAL claimant's request id).
type SettlementError struct {
	Code      string    `json:"code"`
	Status    int       `json:"-"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	ClaimedAt time.Time `json:"claimed_at,omitempty"`
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewReplayError reports an already-claimed transaction identifier. The
// request id and timestamp belong to the original claim.
func NewReplayError(originalRequestID string, claimedAt time.Time) *SettlementError {
	return &SettlementError{
		Code:      CodeReplayDetected,
		Status:    http.StatusConflict,
		Message:   "transaction already claimed by another settlement",
		RequestID: originalRequestID,
		ClaimedAt: claimedAt,
	}
}

func NewVerificationError(requestID, message string) *SettlementError {
	return &SettlementError{
		Code:      CodeVerificationFailed,
		Status:    http.StatusUnprocessableEntity,
		Message:   message,
		RequestID: requestID,
	}
}

func NewNoTreasuryError(requestID, tenantID string) *SettlementError {
	return &SettlementError{
		Code:      CodeNoTreasury,
		Status:    http.StatusBadRequest,
		Message:   fmt.Sprintf("no treasury address configured for tenant %s", tenantID),
		RequestID: requestID,
	}
}

func NewUnsupportedAssetError(requestID, asset string) *SettlementError {
	return &SettlementError{
		Code:      CodeUnsupportedAsset,
		Status:    http.StatusBadRequest,
		Message:   fmt.Sprintf("unsupported settlement asset: %s", asset),
		RequestID: requestID,
	}
}

func NewInvalidAuthorizationError(requestID, message string) *SettlementError {
	return &SettlementError{
		Code:      CodeInvalidAuthorization,
		Status:    http.StatusBadRequest,
		Message:   message,
		RequestID: requestID,
	}
}

func NewPaymentVerificationError(requestID, message string) *SettlementError {
	return &SettlementError{
		Code:      CodePaymentVerificationFailed,
		Status:    http.StatusUnprocessableEntity,
		Message:   message,
		RequestID: requestID,
	}
}

func NewFacilitatorNotConfiguredError(requestID, network string) *SettlementError {
	return &SettlementError{
		Code:      CodeFacilitatorNotConfigured,
		Status:    http.StatusServiceUnavailable,
		Message:   fmt.Sprintf("no settlement facilitator configured for network %s", network),
		RequestID: requestID,
	}
}

// NewInternalError wraps an unexpected failure while keeping the request id
// for correlation. The underlying error text is not exposed to callers.
func NewInternalError(requestID string, err error) *SettlementError {
	return &SettlementError{
		Code:      CodeInternal,
		Status:    http.StatusInternalServerError,
		Message:   "internal settlement error",
		RequestID: requestID,
	}
}
