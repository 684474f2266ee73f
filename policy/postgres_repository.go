// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetPolicy retrieves a policy by ID
func (r *PostgresRepository) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	query := `
		SELECT id, tenant_id, name, rules, created_at, updated_at
		FROM policies
		WHERE id = $1
	`

	var pol Policy
	var name sql.NullString
	var rules []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&pol.ID, &pol.TenantID, &name, &rules, &pol.CreatedAt, &pol.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	pol.Name = name.String
	if err := json.Unmarshal(rules, &pol.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy rules: %w", err)
	}

	return &pol, nil
}

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, tenant_id, status, total_budget_usd, spent_usd,
			   categories, expires_at, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`

	var session Session
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.TenantID, &session.Status,
		&session.TotalBudgetUSD, &session.SpentUSD,
		pq.Array(&session.Categories), &expiresAt,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if expiresAt.Valid {
		session.ExpiresAt = &expiresAt.Time
	}

	return &session, nil
}

// RecordSessionUsage atomically debits a session budget.
// The conditional UPDATE is the budget invariant: spend only increases, never
// passes the ceiling, and the status flip to exhausted happens in the same
// statement that records the final debit.
func (r *PostgresRepository) RecordSessionUsage(ctx context.Context, id string, amountUSD float64) (*UsageResult, error) {
	return r.recordUsage(ctx, "sessions", ErrSessionNotFound, id, amountUSD)
}

// GetMandate retrieves a mandate by ID
func (r *PostgresRepository) GetMandate(ctx context.Context, id string) (*Mandate, error) {
	query := `
		SELECT id, tenant_id, agent_id, status, total_budget_usd, spent_usd,
			   categories, expires_at, created_at, updated_at
		FROM mandates
		WHERE id = $1
	`

	var mandate Mandate
	var agentID sql.NullString
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&mandate.ID, &mandate.TenantID, &agentID, &mandate.Status,
		&mandate.TotalBudgetUSD, &mandate.SpentUSD,
		pq.Array(&mandate.Categories), &expiresAt,
		&mandate.CreatedAt, &mandate.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMandateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mandate: %w", err)
	}

	mandate.AgentID = agentID.String
	if expiresAt.Valid {
		mandate.ExpiresAt = &expiresAt.Time
	}

	return &mandate, nil
}

// RecordMandateUsage atomically debits a mandate budget
func (r *PostgresRepository) RecordMandateUsage(ctx context.Context, id string, amountUSD float64) (*UsageResult, error) {
	return r.recordUsage(ctx, "mandates", ErrMandateNotFound, id, amountUSD)
}

func (r *PostgresRepository) recordUsage(ctx context.Context, table string, notFound error, id string, amountUSD float64) (*UsageResult, error) {
	// table is a compile-time constant at every call site, never user input.
	query := fmt.Sprintf(`
		UPDATE %s SET
			spent_usd = spent_usd + $2,
			status = CASE WHEN spent_usd + $2 >= total_budget_usd THEN 'exhausted' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND spent_usd + $2 <= total_budget_usd
		RETURNING spent_usd, total_budget_usd, status
	`, table)

	var result UsageResult
	var status BudgetStatus
	err := r.db.QueryRowContext(ctx, query, id, amountUSD).Scan(
		&result.SpentUSD, &result.TotalUSD, &status,
	)
	if err == sql.ErrNoRows {
		// Distinguish a missing row from a failed debit condition.
		var exists bool
		checkQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
		if checkErr := r.db.QueryRowContext(ctx, checkQuery, id).Scan(&exists); checkErr != nil {
			return nil, fmt.Errorf("failed to record usage: %w", checkErr)
		}
		if !exists {
			return nil, notFound
		}
		return nil, ErrBudgetExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	result.NewlyExhausted = status == StatusExhausted
	return &result, nil
}
