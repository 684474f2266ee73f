// Copyright 2025 PayRail
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"payrail/platform/facilitator"
	"payrail/platform/shared/types"
)

// memRepo is an in-memory routing Repository.
type memRepo struct {
	mu        sync.Mutex
	overrides []Override
	decisions []*Decision
}

func (m *memRepo) GetOverrides(ctx context.Context, tenantID string) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Override
	for _, o := range m.overrides {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memRepo) SaveDecision(ctx context.Context, decision *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, decision)
	return nil
}

type stubScanner struct {
	result *ScanResult
	err    error
}

func (s *stubScanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	return s.result, s.err
}

func registerFacilitator(t *testing.T, registry *facilitator.Registry, id, endpoint string, fee float64, health facilitator.HealthSnapshot) {
	t.Helper()
	err := registry.Register(facilitator.Config{
		ID:         id,
		Endpoint:   endpoint,
		Networks:   []types.Network{types.NetworkBase},
		BaseFeeUSD: fee,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("Failed to register %s: %v", id, err)
	}
	registry.SetHealth(id, health)
}

func planRequest(mode Mode) PlanRequest {
	return PlanRequest{
		Route: RouteContext{
			TenantID:  "tenant-1",
			RequestID: "req-1",
			Task:      "inference",
		},
		Payment: types.PaymentContext{
			Network: types.NetworkBase,
			Scheme:  types.SchemeExact,
			Amount:  "1.00",
		},
		Options: Options{Mode: mode, ProbeTimeout: 100 * time.Millisecond},
	}
}

func TestPlanCostMode(t *testing.T) {
	registry := facilitator.NewRegistry()
	registerFacilitator(t, registry, "fac_cheap", "https://cheap.example.com", 0.001, healthySnapshot(1000))
	registerFacilitator(t, registry, "fac_expensive", "https://expensive.example.com", 0.1, healthySnapshot(100))

	repo := &memRepo{}
	engine := NewEngine(registry, WithRepository(repo))

	plan, err := engine.Plan(context.Background(), planRequest(ModeCost))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(plan.Candidates) != 2 {
		t.Fatalf("Expected both adapters as candidates, got %d", len(plan.Candidates))
	}
	if plan.SelectedID != "fac_cheap" {
		t.Errorf("Expected fac_cheap selected in cost mode, got %s", plan.SelectedID)
	}

	// fac_expensive keeps a competitive score: latency is not penalized in
	// cost mode, only fees differ.
	var expensive *ScoredCandidate
	for i := range plan.Candidates {
		if plan.Candidates[i].FacilitatorID == "fac_expensive" {
			expensive = &plan.Candidates[i]
		}
	}
	if expensive == nil {
		t.Fatal("Expected fac_expensive in candidates")
	}
	if expensive.Score <= 0 {
		t.Errorf("Expected fac_expensive to keep a positive score, got %v", expensive.Score)
	}

	if len(repo.decisions) != 1 {
		t.Fatalf("Expected 1 persisted decision, got %d", len(repo.decisions))
	}
	if repo.decisions[0].SelectedID != "fac_cheap" || !repo.decisions[0].Success {
		t.Error("Expected decision record to carry the selection")
	}
}

func TestPlanFailover(t *testing.T) {
	// Top candidate is degraded and its live probe reports down; the engine
	// must fail over to the next positive-score candidate.
	downServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer downServer.Close()

	registry := facilitator.NewRegistry()
	registerFacilitator(t, registry, "fac_primary", downServer.URL, 0.001, facilitator.HealthSnapshot{
		Status:       facilitator.HealthStatusDegraded,
		P95LatencyMs: 100,
		SuccessRate:  1.0,
		LastChecked:  time.Now().UTC(),
	})
	registerFacilitator(t, registry, "fac_backup", "https://backup.example.com", 0.08, healthySnapshot(300))

	engine := NewEngine(registry)

	plan, err := engine.Plan(context.Background(), planRequest(ModeCost))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.SelectedID != "fac_backup" {
		t.Errorf("Expected failover to fac_backup, got %s", plan.SelectedID)
	}

	// The failed probe downgrades the cached snapshot.
	if registry.Health("fac_primary").Status != facilitator.HealthStatusDown {
		t.Error("Expected probe failure to mark fac_primary down")
	}
}

func TestPlanProbeRecovers(t *testing.T) {
	// A degraded candidate whose live probe reports healthy is still selected.
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	registry := facilitator.NewRegistry()
	registerFacilitator(t, registry, "fac_primary", okServer.URL, 0.001, facilitator.HealthSnapshot{
		Status:      facilitator.HealthStatusDegraded,
		SuccessRate: 1.0,
		LastChecked: time.Now().UTC(),
	})

	engine := NewEngine(registry)

	plan, err := engine.Plan(context.Background(), planRequest(ModeBalanced))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.SelectedID != "fac_primary" {
		t.Errorf("Expected fac_primary after successful probe, got %s", plan.SelectedID)
	}
	if registry.Health("fac_primary").Status != facilitator.HealthStatusHealthy {
		t.Error("Expected probe to refresh the cached snapshot")
	}
}

func TestPlanNoCandidates(t *testing.T) {
	engine := NewEngine(facilitator.NewRegistry())

	plan, err := engine.Plan(context.Background(), planRequest(ModeBalanced))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.SelectedID != "" {
		t.Errorf("Expected empty selection with no candidates, got %s", plan.SelectedID)
	}
	if len(plan.Candidates) != 0 {
		t.Errorf("Expected no candidates, got %d", len(plan.Candidates))
	}
}

func TestPlanStaticOverride(t *testing.T) {
	registry := facilitator.NewRegistry()
	registerFacilitator(t, registry, "fac_scored", "https://scored.example.com", 0.001, healthySnapshot(100))

	repo := &memRepo{overrides: []Override{
		{TenantID: "tenant-1", Pattern: "infer*", FacilitatorID: "fac_pinned"},
	}}
	engine := NewEngine(registry, WithRepository(repo))

	plan, err := engine.Plan(context.Background(), planRequest(ModeBalanced))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.SelectedID != "fac_pinned" {
		t.Errorf("Expected override to pin fac_pinned, got %s", plan.SelectedID)
	}

	t.Run("non-matching pattern scores normally", func(t *testing.T) {
		req := planRequest(ModeBalanced)
		req.Route.Task = "search"
		plan, err := engine.Plan(context.Background(), req)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if plan.SelectedID != "fac_scored" {
			t.Errorf("Expected scoring path, got %s", plan.SelectedID)
		}
	})
}

func TestPlanAnomalyGate(t *testing.T) {
	registry := facilitator.NewRegistry()
	registerFacilitator(t, registry, "fac_a", "https://a.example.com", 0.001, healthySnapshot(100))

	t.Run("critical anomaly vetoes", func(t *testing.T) {
		engine := NewEngine(registry, WithScanner(&stubScanner{result: &ScanResult{
			Anomaly: true, Severity: "critical", Reason: "spend spike",
		}}))

		plan, err := engine.Plan(context.Background(), planRequest(ModeQuality))
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if !plan.Vetoed || plan.SelectedID != "" {
			t.Errorf("Expected veto, got vetoed=%v selected=%s", plan.Vetoed, plan.SelectedID)
		}
	})

	t.Run("low severity downgrades mode", func(t *testing.T) {
		engine := NewEngine(registry, WithScanner(&stubScanner{result: &ScanResult{
			Anomaly: true, Severity: "low", SuggestedMode: "balanced",
		}}))

		plan, err := engine.Plan(context.Background(), planRequest(ModeQuality))
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if plan.Vetoed {
			t.Error("Expected no veto for low severity")
		}
		if plan.Mode != ModeBalanced {
			t.Errorf("Expected mode downgraded to balanced, got %s", plan.Mode)
		}
	})

	t.Run("scanner error fails open", func(t *testing.T) {
		engine := NewEngine(registry, WithScanner(&stubScanner{err: context.DeadlineExceeded}))

		plan, err := engine.Plan(context.Background(), planRequest(ModeQuality))
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if plan.Vetoed || plan.SelectedID == "" {
			t.Error("Expected scanner failure to fail open")
		}
	})
}
