// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import "context"

// UsageResult reports the state of a budget holder after a usage record.
type UsageResult struct {
	SpentUSD       float64
	TotalUSD       float64
	NewlyExhausted bool
}

// Repository defines storage operations for policies, sessions, and mandates.
type Repository interface {
	// GetPolicy retrieves a policy by ID. Returns ErrPolicyNotFound when
	// no such policy exists.
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// GetSession retrieves a session by ID. Returns ErrSessionNotFound when
	// no such session exists.
	GetSession(ctx context.Context, id string) (*Session, error)

	// RecordSessionUsage atomically debits a session budget. The debit is
	// conditional: it succeeds only while the session is active and the
	// amount fits the remaining budget, and it flips status to exhausted
	// when spend reaches the ceiling. Returns ErrBudgetExceeded when the
	// condition fails.
	RecordSessionUsage(ctx context.Context, id string, amountUSD float64) (*UsageResult, error)

	// GetMandate retrieves a mandate by ID. Returns ErrMandateNotFound when
	// no such mandate exists.
	GetMandate(ctx context.Context, id string) (*Mandate, error)

	// RecordMandateUsage atomically debits a mandate budget with the same
	// conditional semantics as RecordSessionUsage.
	RecordMandateUsage(ctx context.Context, id string, amountUSD float64) (*UsageResult, error)
}
