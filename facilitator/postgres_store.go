// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package facilitator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL facilitator store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListFacilitators returns all enabled facilitator configs
func (s *PostgresStore) ListFacilitators(ctx context.Context) ([]Config, error) {
	query := `
		SELECT id, name, endpoint, health_path, networks, schemes, assets,
			   bridge, payment_config, base_fee_usd, reputation, capabilities
		FROM facilitators
		WHERE enabled = true
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list facilitators: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var config Config
		var name, healthPath sql.NullString
		var networks, schemes, assets, bridge, payment, capabilities []byte

		err := rows.Scan(
			&config.ID, &name, &config.Endpoint, &healthPath,
			&networks, &schemes, &assets, &bridge, &payment,
			&config.BaseFeeUSD, &config.Reputation, &capabilities,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan facilitator: %w", err)
		}

		config.Name = name.String
		config.HealthPath = healthPath.String
		config.Enabled = true

		if err := json.Unmarshal(networks, &config.Networks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal networks for %s: %w", config.ID, err)
		}
		if len(schemes) > 0 {
			if err := json.Unmarshal(schemes, &config.Schemes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal schemes for %s: %w", config.ID, err)
			}
		}
		if len(assets) > 0 {
			if err := json.Unmarshal(assets, &config.Assets); err != nil {
				return nil, fmt.Errorf("failed to unmarshal assets for %s: %w", config.ID, err)
			}
		}
		if len(bridge) > 0 {
			if err := json.Unmarshal(bridge, &config.Bridge); err != nil {
				return nil, fmt.Errorf("failed to unmarshal bridge map for %s: %w", config.ID, err)
			}
		}
		if len(payment) > 0 {
			if err := json.Unmarshal(payment, &config.Payment); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payment config for %s: %w", config.ID, err)
			}
		}
		if len(capabilities) > 0 {
			if err := json.Unmarshal(capabilities, &config.Capabilities); err != nil {
				return nil, fmt.Errorf("failed to unmarshal capabilities for %s: %w", config.ID, err)
			}
		}

		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate facilitators: %w", err)
	}

	return configs, nil
}

// GetHealth returns the last recorded health snapshot for a facilitator
func (s *PostgresStore) GetHealth(ctx context.Context, id string) (*HealthSnapshot, error) {
	query := `
		SELECT status, p95_latency_ms, success_rate, last_checked
		FROM facilitator_health
		WHERE facilitator_id = $1
	`

	var snapshot HealthSnapshot
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&snapshot.Status, &snapshot.P95LatencyMs, &snapshot.SuccessRate, &snapshot.LastChecked,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facilitator health: %w", err)
	}

	return &snapshot, nil
}

// SaveHealth records a health snapshot, replacing any previous one
func (s *PostgresStore) SaveHealth(ctx context.Context, id string, snapshot HealthSnapshot) error {
	query := `
		INSERT INTO facilitator_health (facilitator_id, status, p95_latency_ms, success_rate, last_checked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (facilitator_id) DO UPDATE SET
			status = EXCLUDED.status,
			p95_latency_ms = EXCLUDED.p95_latency_ms,
			success_rate = EXCLUDED.success_rate,
			last_checked = EXCLUDED.last_checked,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		id, snapshot.Status, snapshot.P95LatencyMs, snapshot.SuccessRate,
		snapshot.LastChecked, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save facilitator health: %w", err)
	}

	return nil
}
