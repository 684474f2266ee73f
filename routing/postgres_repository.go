// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOverrides returns the tenant's substitution rules
func (r *PostgresRepository) GetOverrides(ctx context.Context, tenantID string) ([]Override, error) {
	query := `
		SELECT id, tenant_id, pattern, facilitator_id, created_at
		FROM routing_overrides
		WHERE tenant_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Pattern, &o.FacilitatorID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan routing override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routing overrides: %w", err)
	}

	return overrides, nil
}

// SaveDecision persists a plan's audit record
func (r *PostgresRepository) SaveDecision(ctx context.Context, decision *Decision) error {
	candidates, err := json.Marshal(decision.Candidates)
	if err != nil {
		return fmt.Errorf("failed to marshal decision candidates: %w", err)
	}

	query := `
		INSERT INTO routing_decisions (
			id, tenant_id, request_id, mode, selected_id,
			cache_hit, candidates, success, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		decision.ID, decision.TenantID, nullString(decision.RequestID),
		decision.Mode, nullString(decision.SelectedID),
		decision.CacheHit, candidates, decision.Success, decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save routing decision: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
