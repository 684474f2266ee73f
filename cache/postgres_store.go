// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL cache store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetExact retrieves an entry by tenant and request hash, bumping usage
func (s *PostgresStore) GetExact(ctx context.Context, tenantID, requestHash string) (*Entry, error) {
	query := `
		UPDATE cache_entries SET
			usage_count = usage_count + 1,
			last_used_at = NOW()
		WHERE tenant_id = $1 AND request_hash = $2
		RETURNING id, tenant_id, request_hash, response, model_tag,
				  embedding, usage_count, created_at, last_used_at
	`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, tenantID, requestHash))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// ListEmbedded returns the tenant's entries carrying embeddings
func (s *PostgresStore) ListEmbedded(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, tenant_id, request_hash, response, model_tag,
			   embedding, usage_count, created_at, last_used_at
		FROM cache_entries
		WHERE tenant_id = $1 AND embedding IS NOT NULL
		ORDER BY last_used_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}

	return entries, nil
}

// Upsert inserts or refreshes an entry keyed by (tenant_id, request_hash)
func (s *PostgresStore) Upsert(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO cache_entries (
			id, tenant_id, request_hash, response, model_tag,
			embedding, usage_count, created_at, last_used_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (tenant_id, request_hash) DO UPDATE SET
			response = EXCLUDED.response,
			model_tag = EXCLUDED.model_tag,
			embedding = COALESCE(EXCLUDED.embedding, cache_entries.embedding),
			usage_count = cache_entries.usage_count + 1,
			last_used_at = EXCLUDED.last_used_at
	`

	var embedding interface{}
	if len(entry.Embedding) > 0 {
		embedding = pq.Array(entry.Embedding)
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.RequestHash, entry.Response,
		nullString(entry.ModelTag), embedding, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// TenantThreshold returns the tenant's configured similarity threshold
func (s *PostgresStore) TenantThreshold(ctx context.Context, tenantID string) (float64, error) {
	query := `SELECT similarity_threshold FROM tenant_cache_settings WHERE tenant_id = $1`

	var threshold float64
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&threshold)
	if err == sql.ErrNoRows {
		return DefaultSimilarityThreshold, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get tenant threshold: %w", err)
	}
	if threshold <= 0 || threshold > 1 {
		return DefaultSimilarityThreshold, nil
	}

	return threshold, nil
}

// RecordUsage bumps usage for a fuzzy-matched entry
func (s *PostgresStore) RecordUsage(ctx context.Context, id string) error {
	query := `
		UPDATE cache_entries SET
			usage_count = usage_count + 1,
			last_used_at = NOW()
		WHERE id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to record cache usage: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var entry Entry
	var modelTag sql.NullString
	var embedding pq.Float64Array

	err := row.Scan(
		&entry.ID, &entry.TenantID, &entry.RequestHash, &entry.Response,
		&modelTag, &embedding, &entry.UsageCount,
		&entry.CreatedAt, &entry.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ModelTag = modelTag.String
	entry.Embedding = []float64(embedding)
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
