// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"errors"
)

// ErrNotFound indicates no cache entry matched the lookup.
var ErrNotFound = errors.New("cache entry not found")

// Store defines persistent cache storage operations.
type Store interface {
	// GetExact retrieves an entry by tenant and request hash, incrementing
	// its usage count. Returns ErrNotFound on miss.
	GetExact(ctx context.Context, tenantID, requestHash string) (*Entry, error)

	// ListEmbedded returns the tenant's entries that carry embeddings,
	// most recently used first, bounded by limit.
	ListEmbedded(ctx context.Context, tenantID string, limit int) ([]*Entry, error)

	// Upsert inserts an entry or, on (tenant_id, request_hash) conflict,
	// increments the usage count and refreshes response and embedding.
	Upsert(ctx context.Context, entry *Entry) error

	// TenantThreshold returns the tenant's similarity threshold, or the
	// default when none is configured.
	TenantThreshold(ctx context.Context, tenantID string) (float64, error)

	// RecordUsage bumps the usage count and last-used timestamp of an
	// entry matched via fuzzy lookup.
	RecordUsage(ctx context.Context, id string) error
}
