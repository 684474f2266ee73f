// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"payrail/platform/facilitator"
	"payrail/platform/policy"
	"payrail/platform/routing"
	"payrail/platform/shared/types"
)

// stubPolicyRepo serves a fixed policy set.
type stubPolicyRepo struct {
	policies map[string]*policy.Policy
}

func (r *stubPolicyRepo) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	if p, ok := r.policies[id]; ok {
		return p, nil
	}
	return nil, policy.ErrPolicyNotFound
}

func (r *stubPolicyRepo) GetSession(ctx context.Context, id string) (*policy.Session, error) {
	return nil, policy.ErrSessionNotFound
}

func (r *stubPolicyRepo) RecordSessionUsage(ctx context.Context, id string, amountUSD float64) (*policy.UsageResult, error) {
	return nil, policy.ErrSessionNotFound
}

func (r *stubPolicyRepo) GetMandate(ctx context.Context, id string) (*policy.Mandate, error) {
	return nil, policy.ErrMandateNotFound
}

func (r *stubPolicyRepo) RecordMandateUsage(ctx context.Context, id string, amountUSD float64) (*policy.UsageResult, error) {
	return nil, policy.ErrMandateNotFound
}

// recordingSink captures analytics events.
type recordingSink struct {
	mu     sync.Mutex
	events []*AnalyticsEvent
	seen   chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan string, 16)}
}

func (s *recordingSink) Emit(ctx context.Context, event *AnalyticsEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.seen <- event.Type
	return nil
}

func (s *recordingSink) waitFor(t *testing.T, eventType string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.seen:
			if got == eventType {
				return
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s event", eventType)
		}
	}
}

func testRegistry(t *testing.T) *facilitator.Registry {
	t.Helper()
	registry := facilitator.NewRegistry()
	err := registry.Register(facilitator.Config{
		ID:         "fac_a",
		Endpoint:   "https://a.example.com",
		Networks:   []types.Network{types.NetworkBase},
		BaseFeeUSD: 0.01,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("Failed to register facilitator: %v", err)
	}
	registry.SetHealth("fac_a", facilitator.HealthSnapshot{
		Status:      facilitator.HealthStatusHealthy,
		SuccessRate: 1.0,
		LastChecked: time.Now().UTC(),
	})
	return registry
}

func testService(t *testing.T, repo policy.Repository, sink AnalyticsSink) *Service {
	t.Helper()
	policyEngine := policy.NewEngine(repo, policy.NewTokenParser(nil))
	mandates := policy.NewMandateService(repo, nil)
	engine := routing.NewEngine(testRegistry(t))
	return NewService(policyEngine, mandates, engine, WithAnalytics(sink))
}

func planAPIRequest() *PlanAPIRequest {
	return &PlanAPIRequest{
		RouteID:  "route-1",
		TenantID: "tenant-1",
		Task:     "inference",
		Payment: types.PaymentContext{
			Network: types.NetworkBase,
			Scheme:  types.SchemeExact,
			Amount:  "1.00",
		},
	}
}

func TestPlanHappyPath(t *testing.T) {
	sink := newRecordingSink()
	service := testService(t, &stubPolicyRepo{}, sink)

	resp, err := service.Plan(context.Background(), planAPIRequest())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if !resp.Allow {
		t.Error("Expected allow without a policy (fail-open)")
	}
	if resp.SelectedID != "fac_a" {
		t.Errorf("Expected fac_a selected, got %s", resp.SelectedID)
	}
	if resp.RecommendedAcceptIndex < 0 ||
		resp.Candidates[resp.RecommendedAcceptIndex].FacilitatorID != "fac_a" {
		t.Errorf("Expected recommended index to point at the selection, got %d", resp.RecommendedAcceptIndex)
	}
	if resp.DecisionID == "" {
		t.Error("Expected a decision id")
	}

	// The trace must be sealed and ordered: received, policy, selection.
	steps := resp.Policy.DecisionTrace
	if len(steps) < 3 {
		t.Fatalf("Expected at least 3 trace steps, got %d", len(steps))
	}
	if steps[0].Stage != "received" || steps[len(steps)-1].Stage != "selected" {
		t.Errorf("Unexpected trace ordering: %+v", steps)
	}

	sink.waitFor(t, EventPlan)
}

func TestPlanPolicyDenialShortCircuits(t *testing.T) {
	repo := &stubPolicyRepo{policies: map[string]*policy.Policy{
		"pol-1": {
			ID:       "pol-1",
			TenantID: "tenant-1",
			Rules: policy.RuleSet{
				DenyIf: policy.DenyRules{LegacyHeader: true},
			},
		},
	}}
	sink := newRecordingSink()
	service := testService(t, repo, sink)

	req := planAPIRequest()
	req.PolicyID = "pol-1"
	req.Payment.LegacyHeaderUsed = true

	resp, err := service.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if resp.Allow {
		t.Error("Expected denial for legacy header")
	}
	if resp.Policy.Deny != string(policy.DenyLegacyHeader) {
		t.Errorf("Expected LEGACY_HEADER deny code, got %s", resp.Policy.Deny)
	}
	if len(resp.Candidates) != 0 || resp.RecommendedAcceptIndex != -1 {
		t.Error("Expected no candidates on a policy denial")
	}

	sink.waitFor(t, EventViolation)
}

func TestPlanWithoutAnalyticsSink(t *testing.T) {
	service := testService(t, &stubPolicyRepo{}, nil)

	resp, err := service.Plan(context.Background(), planAPIRequest())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !resp.Allow {
		t.Error("Expected allow with a nil sink")
	}
}

func TestDecisionTrace(t *testing.T) {
	trace := NewDecisionTrace()
	trace.Append("received", "inference")
	trace.Append("policy_allowed", "pol-1")
	trace.Seal()

	// Writes after sealing are dropped.
	trace.Append("late", "ignored")

	steps := trace.Steps()
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps after seal, got %d", len(steps))
	}
	if steps[0].Stage != "received" || steps[1].Stage != "policy_allowed" {
		t.Errorf("Unexpected steps: %+v", steps)
	}
	if steps[0].Timestamp.After(steps[1].Timestamp) {
		t.Error("Expected chronological step timestamps")
	}
}

func TestBudgetNotifierWithoutSink(t *testing.T) {
	notifier := NewBudgetNotifier(nil)
	// Must not panic without a sink.
	notifier.NotifyBudgetExhausted(context.Background(), "tenant-1", "mandate-1", 50)
}

func TestBudgetNotifierEmits(t *testing.T) {
	sink := newRecordingSink()
	notifier := NewBudgetNotifier(sink)

	notifier.NotifyBudgetExhausted(context.Background(), "tenant-1", "mandate-1", 50)
	sink.waitFor(t, EventBudgetExhausted)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	event := sink.events[len(sink.events)-1]
	if event.Payload["mandate_id"] != "mandate-1" {
		t.Errorf("Expected mandate id in payload, got %+v", event.Payload)
	}
}
