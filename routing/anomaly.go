// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"payrail/platform/shared/types"
)

// ScanRequest describes a plan request to the risk-scan service.
type ScanRequest struct {
	TenantID  string        `json:"tenant_id"`
	BuyerID   string        `json:"buyer_id,omitempty"`
	Task      string        `json:"task,omitempty"`
	AmountUSD float64       `json:"amount_usd"`
	Network   types.Network `json:"network"`
}

// ScanResult is the risk-scan verdict. A high-severity anomaly vetoes the
// request; a suggested mode downgrades scoring without blocking.
type ScanResult struct {
	Anomaly       bool   `json:"anomaly"`
	Severity      string `json:"severity,omitempty"`
	SuggestedMode string `json:"suggested_mode,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// RiskScanner is the external anomaly-detection collaborator. Scanner
// failures fail open: the plan proceeds unmodified.
type RiskScanner interface {
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
}

// HTTPRiskScanner calls a risk-scan service over HTTP.
type HTTPRiskScanner struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRiskScanner creates a scanner for the given endpoint.
func NewHTTPRiskScanner(endpoint string) *HTTPRiskScanner {
	return &HTTPRiskScanner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 3 * time.Second},
	}
}

// NewHTTPRiskScannerFromEnv creates a scanner from RISK_SCAN_ENDPOINT.
// Returns nil when unset; a nil scanner disables the anomaly gate.
func NewHTTPRiskScannerFromEnv() *HTTPRiskScanner {
	endpoint := os.Getenv("RISK_SCAN_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return NewHTTPRiskScanner(endpoint)
}

// Scan submits the request for anomaly analysis.
func (s *HTTPRiskScanner) Scan(ctx context.Context, scanReq ScanRequest) (*ScanResult, error) {
	body, err := json.Marshal(scanReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call risk-scan service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk-scan service returned status %d", resp.StatusCode)
	}

	var result ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode scan result: %w", err)
	}
	return &result, nil
}

// vetoes reports whether a scan result hard-blocks the request.
func vetoes(result *ScanResult) bool {
	if result == nil || !result.Anomaly {
		return false
	}
	return result.Severity == "critical" || result.Severity == "high"
}
