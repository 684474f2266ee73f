// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"payrail/platform/shared/types"
)

// ErrTreasuryNotFound indicates the tenant has no treasury address on the
// requested network.
var ErrTreasuryNotFound = errors.New("treasury not found")

// TreasuryStore resolves the address a tenant's payments must be paid to.
type TreasuryStore interface {
	GetTreasury(ctx context.Context, tenantID string, network types.Network) (string, error)
}

// PostgresTreasuryStore implements TreasuryStore using PostgreSQL
type PostgresTreasuryStore struct {
	db *sql.DB
}

// NewPostgresTreasuryStore creates a new PostgreSQL treasury store
func NewPostgresTreasuryStore(db *sql.DB) *PostgresTreasuryStore {
	return &PostgresTreasuryStore{db: db}
}

// GetTreasury returns the tenant's treasury address on a network
func (s *PostgresTreasuryStore) GetTreasury(ctx context.Context, tenantID string, network types.Network) (string, error) {
	query := `
		SELECT address
		FROM tenant_treasuries
		WHERE tenant_id = $1 AND network = $2
	`

	var address string
	err := s.db.QueryRowContext(ctx, query, tenantID, network.String()).Scan(&address)
	if err == sql.ErrNoRows {
		return "", ErrTreasuryNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get treasury address: %w", err)
	}
	return address, nil
}
