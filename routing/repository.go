// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import "context"

// Repository defines storage for routing overrides and decision records.
type Repository interface {
	// GetOverrides returns the tenant's substitution rules.
	GetOverrides(ctx context.Context, tenantID string) ([]Override, error)

	// SaveDecision persists a plan's audit record. Failures are logged by
	// callers, never propagated to the request path.
	SaveDecision(ctx context.Context, decision *Decision) error
}
