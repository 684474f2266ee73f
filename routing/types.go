// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"time"

	"payrail/platform/facilitator"
)

// RouteContext identifies the caller and the work being routed.
type RouteContext struct {
	TenantID  string
	RequestID string
	BuyerID   string

	// Task is the capability identifier the buyer declared (e.g.
	// "inference", "search"). Used for capability bonuses and overrides.
	Task string

	// ContentKey, when set together with TenantID, enables the cache
	// short-circuit before any scoring.
	ContentKey string
}

// Options tunes one plan call.
type Options struct {
	Mode Mode

	// ProbeTimeout bounds the live failover probe. Zero means the default.
	ProbeTimeout time.Duration
}

// ScoredCandidate is one facilitator's scoring outcome in a plan.
type ScoredCandidate struct {
	FacilitatorID   string                   `json:"facilitator_id"`
	Name            string                   `json:"name"`
	Score           float64                  `json:"score"`
	Health          facilitator.HealthStatus `json:"health"`
	BaseFeeUSD      float64                  `json:"base_fee_usd"`
	Supported       bool                     `json:"supported"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
}

// Plan is the routing engine's answer for one request.
type Plan struct {
	SelectedID string            `json:"selected_id"`
	Candidates []ScoredCandidate `json:"candidates"`
	CacheHit   bool              `json:"cache_hit"`
	Mode       Mode              `json:"mode"`

	// Vetoed is set when the anomaly gate hard-blocked the request.
	Vetoed     bool   `json:"vetoed,omitempty"`
	VetoReason string `json:"veto_reason,omitempty"`
}

// SelectedCacheID is the sentinel selection for cache short-circuits.
const SelectedCacheID = "cache"

// Override is a tenant-configured substitution rule: when the pattern
// glob-matches the task, the named facilitator is selected without scoring.
type Override struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Pattern       string    `json:"pattern"`
	FacilitatorID string    `json:"facilitator_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Decision is the persisted audit record of one plan call.
type Decision struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	RequestID  string            `json:"request_id,omitempty"`
	Mode       Mode              `json:"mode"`
	SelectedID string            `json:"selected_id"`
	CacheHit   bool              `json:"cache_hit"`
	Candidates []ScoredCandidate `json:"candidates"`
	Success    bool              `json:"success"`
	CreatedAt  time.Time         `json:"created_at"`
}
