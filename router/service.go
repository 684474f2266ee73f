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

package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"payrail/platform/policy"
	"payrail/platform/routing"
	"payrail/platform/shared/logger"
	"payrail/platform/shared/types"
)

// PlanAPIRequest is the body of POST /api/v1/plan.
type PlanAPIRequest struct {
	PolicyID string `json:"policy_id,omitempty"`
	RouteID  string `json:"route_id"`
	TenantID string `json:"tenant_id"`
	BuyerID  string `json:"buyer_id,omitempty"`
	// Prompt enables the cache short-circuit when present.
	Prompt       string               `json:"prompt,omitempty"`
	Task         string               `json:"task,omitempty"`
	Mode         string               `json:"mode,omitempty"`
	SessionToken string               `json:"session_token,omitempty"`
	ProviderID   string               `json:"provider_id,omitempty"`
	Payment      types.PaymentContext `json:"payment"`
}

// PolicyResult is the policy section of a plan response.
type PolicyResult struct {
	PolicyID      string      `json:"policy_id,omitempty"`
	Allow         bool        `json:"allow"`
	Reasons       []string    `json:"reasons"`
	Deny          string      `json:"deny,omitempty"`
	DecisionTrace []TraceStep `json:"decision_trace"`
}

// PlanAPIResponse is the plan outcome returned to the caller.
type PlanAPIResponse struct {
	DecisionID             string                    `json:"decision_id"`
	Allow                  bool                      `json:"allow"`
	Policy                 PolicyResult              `json:"policy"`
	Candidates             []routing.ScoredCandidate `json:"candidates"`
	RecommendedAcceptIndex int                       `json:"recommended_accept_index"`
	SelectedID             string                    `json:"selected_id,omitempty"`
	CacheHit               bool                      `json:"cache_hit"`
}

// Service orchestrates policy evaluation, cache consultation and routing for
// one plan call, recording a decision trace and emitting analytics.
type Service struct {
	policy    *policy.Engine
	mandates  *policy.MandateService
	engine    *routing.Engine
	analytics AnalyticsSink
	log       *logger.Logger
}

// ServiceOption configures the router service.
type ServiceOption func(*Service)

// WithAnalytics sets the analytics sink.
func WithAnalytics(sink AnalyticsSink) ServiceOption {
	return func(s *Service) {
		s.analytics = sink
	}
}

// NewService creates the router orchestration service
func NewService(policyEngine *policy.Engine, mandates *policy.MandateService, engine *routing.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		policy:   policyEngine,
		mandates: mandates,
		engine:   engine,
		log:      logger.New("router"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mandates exposes the mandate service for the verify/usage endpoints.
func (s *Service) Mandates() *policy.MandateService {
	return s.mandates
}

// Plan runs the policy gate, the cache short-circuit and routing, in that
// order. Policy denials return allow:false with the deny code; they are
// never errors.
func (s *Service) Plan(ctx context.Context, req *PlanAPIRequest) (*PlanAPIResponse, error) {
	decisionID := uuid.New().String()
	trace := NewDecisionTrace()
	trace.Append("received", req.Task)

	decision, err := s.policy.Evaluate(ctx, req.PolicyID, policy.EvalContext{
		TenantID:         req.TenantID,
		RequestID:        decisionID,
		AmountUSD:        req.Payment.AmountUSD(),
		LegacyHeaderUsed: req.Payment.LegacyHeaderUsed,
		HasSignature:     !req.Payment.LegacyHeaderUsed,
		Network:          req.Payment.Network,
		Scheme:           req.Payment.Scheme,
		Asset:            req.Payment.Asset,
		SessionToken:     req.SessionToken,
		ProviderID:       req.ProviderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if !decision.Allow {
		trace.Append("policy_denied", string(decision.Deny))
		trace.Seal()
		s.emit(&AnalyticsEvent{
			Type:      EventViolation,
			TenantID:  req.TenantID,
			RequestID: decisionID,
			Payload: map[string]interface{}{
				"deny":    string(decision.Deny),
				"reasons": decision.Reasons,
			},
		})
		return &PlanAPIResponse{
			DecisionID:             decisionID,
			Allow:                  false,
			Policy:                 policyResult(decision, trace),
			Candidates:             []routing.ScoredCandidate{},
			RecommendedAcceptIndex: -1,
		}, nil
	}
	trace.Append("policy_allowed", decision.PolicyID)

	plan, err := s.engine.Plan(ctx, routing.PlanRequest{
		Route: routing.RouteContext{
			TenantID:   req.TenantID,
			RequestID:  decisionID,
			BuyerID:    req.BuyerID,
			Task:       req.Task,
			ContentKey: req.Prompt,
		},
		Payment: req.Payment,
		Options: routing.Options{Mode: routing.Mode(req.Mode)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to plan route: %w", err)
	}

	switch {
	case plan.CacheHit:
		trace.Append("cache_hit", "")
	case plan.Vetoed:
		trace.Append("vetoed", plan.VetoReason)
	case plan.SelectedID == "":
		trace.Append("no_route", "")
	default:
		trace.Append("selected", plan.SelectedID)
	}
	trace.Seal()

	s.emit(&AnalyticsEvent{
		Type:      EventPlan,
		TenantID:  req.TenantID,
		RequestID: decisionID,
		Payload: map[string]interface{}{
			"selected_id": plan.SelectedID,
			"cache_hit":   plan.CacheHit,
			"mode":        string(plan.Mode),
			"vetoed":      plan.Vetoed,
			"candidates":  len(plan.Candidates),
		},
	})

	return &PlanAPIResponse{
		DecisionID:             decisionID,
		Allow:                  !plan.Vetoed,
		Policy:                 policyResult(decision, trace),
		Candidates:             plan.Candidates,
		RecommendedAcceptIndex: acceptIndex(plan),
		SelectedID:             plan.SelectedID,
		CacheHit:               plan.CacheHit,
	}, nil
}

// emit sends an analytics event fire-and-forget. The detached context keeps
// the write alive after the request returns.
func (s *Service) emit(event *AnalyticsEvent) {
	if s.analytics == nil {
		return
	}
	go func() {
		if err := s.analytics.Emit(context.Background(), event); err != nil {
			s.log.Warn(event.TenantID, event.RequestID, "Analytics emit failed", map[string]interface{}{
				"type":  event.Type,
				"error": err.Error(),
			})
		}
	}()
}

func policyResult(decision *policy.Decision, trace *DecisionTrace) PolicyResult {
	return PolicyResult{
		PolicyID:      decision.PolicyID,
		Allow:         decision.Allow,
		Reasons:       decision.Reasons,
		Deny:          string(decision.Deny),
		DecisionTrace: trace.Steps(),
	}
}

func acceptIndex(plan *routing.Plan) int {
	for i, candidate := range plan.Candidates {
		if candidate.FacilitatorID == plan.SelectedID {
			return i
		}
	}
	return -1
}
