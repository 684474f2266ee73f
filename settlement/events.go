// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventStore records settlement outcomes. The trail is append-only.
type EventStore interface {
	Record(ctx context.Context, event *Event) error
}

// PostgresEventStore implements EventStore using PostgreSQL
type PostgresEventStore struct {
	db *sql.DB
}

// NewPostgresEventStore creates a new PostgreSQL event store
func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// Record appends a settlement event
func (s *PostgresEventStore) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO settlement_events (
			id, tenant_id, request_id, tx_hash, status,
			verified_amount, asset, payer, error_code, error_message,
			steps, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.TenantID, event.RequestID, event.TxHash, event.Status,
		nullString(event.VerifiedAmount), nullString(event.Asset),
		nullString(event.Payer), nullString(event.ErrorCode),
		nullString(event.ErrorMessage), pq.Array(event.Steps), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record settlement event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
