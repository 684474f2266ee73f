// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ClaimStore provides atomic replay protection for settlement attempts.
//
// Claim must be a single atomic storage operation; concurrent callers racing
// on the same txID must resolve to exactly one owner. A check-then-insert
// sequence is not an acceptable implementation.
type ClaimStore interface {
	// Claim takes exclusive ownership of txID. On conflict it returns the
	// existing claim and ok=false without modifying anything.
	Claim(ctx context.Context, claim *Claim) (existing *Claim, ok bool, err error)
	// Release drops a pending claim so the identifier becomes retryable.
	// Settled claims are never released.
	Release(ctx context.Context, txID string) error
	// MarkSettled makes the claim permanent.
	MarkSettled(ctx context.Context, txID string) error
}

// PostgresClaimStore implements ClaimStore using PostgreSQL
type PostgresClaimStore struct {
	db *sql.DB
}

// NewPostgresClaimStore creates a new PostgreSQL claim store
func NewPostgresClaimStore(db *sql.DB) *PostgresClaimStore {
	return &PostgresClaimStore{db: db}
}

// Claim inserts the claim row, deferring conflict resolution to the unique
// constraint on tx_id. The insert and the loser's lookup are separate
// statements, but ownership is decided entirely by the insert.
func (s *PostgresClaimStore) Claim(ctx context.Context, claim *Claim) (*Claim, bool, error) {
	query := `
		INSERT INTO settlement_claims (tx_id, request_id, tenant_id, amount, asset, status, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_id) DO NOTHING
		RETURNING tx_id
	`

	claimedAt := claim.ClaimedAt
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}

	var inserted string
	err := s.db.QueryRowContext(ctx, query,
		claim.TxID, claim.RequestID, claim.TenantID,
		claim.Amount, claim.Asset, ClaimStatusPending, claimedAt,
	).Scan(&inserted)
	if err == nil {
		claim.Status = ClaimStatusPending
		claim.ClaimedAt = claimedAt
		return nil, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to claim transaction: %w", err)
	}

	// Lost the race; fetch the winner for the replay error.
	existing, err := s.get(ctx, claim.TxID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Release deletes a claim unless it has been settled
func (s *PostgresClaimStore) Release(ctx context.Context, txID string) error {
	query := `DELETE FROM settlement_claims WHERE tx_id = $1 AND status != $2`

	if _, err := s.db.ExecContext(ctx, query, txID, ClaimStatusSettled); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// MarkSettled transitions the claim to its permanent settled state
func (s *PostgresClaimStore) MarkSettled(ctx context.Context, txID string) error {
	query := `UPDATE settlement_claims SET status = $2 WHERE tx_id = $1`

	result, err := s.db.ExecContext(ctx, query, txID, ClaimStatusSettled)
	if err != nil {
		return fmt.Errorf("failed to mark claim settled: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check settled claim: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no claim found for transaction %s", txID)
	}
	return nil
}

func (s *PostgresClaimStore) get(ctx context.Context, txID string) (*Claim, error) {
	query := `
		SELECT tx_id, request_id, tenant_id, amount, asset, status, claimed_at
		FROM settlement_claims
		WHERE tx_id = $1
	`

	claim := &Claim{}
	err := s.db.QueryRowContext(ctx, query, txID).Scan(
		&claim.TxID, &claim.RequestID, &claim.TenantID,
		&claim.Amount, &claim.Asset, &claim.Status, &claim.ClaimedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing claim: %w", err)
	}
	return claim, nil
}
