// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1
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
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"payrail/platform/cache"
	"payrail/platform/facilitator"
	"payrail/platform/shared/logger"
	"payrail/platform/shared/types"
)

// DefaultProbeTimeout bounds the live failover probe.
const DefaultProbeTimeout = 3 * time.Second

// Engine scores and selects facilitators for payment plans.
type Engine struct {
	registry *facilitator.Registry
	cache    *cache.Service
	repo     Repository
	scanner  RiskScanner
	weights  Weights
	log      *logger.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithCache enables the cache short-circuit.
func WithCache(c *cache.Service) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithRepository enables overrides and decision persistence.
func WithRepository(repo Repository) EngineOption {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithScanner enables the proactive anomaly gate.
func WithScanner(scanner RiskScanner) EngineOption {
	return func(e *Engine) {
		e.scanner = scanner
	}
}

// WithWeights overrides the balanced-mode weights.
func WithWeights(weights Weights) EngineOption {
	return func(e *Engine) {
		e.weights = weights
	}
}

// NewEngine creates a routing engine over the facilitator registry.
func NewEngine(registry *facilitator.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		weights:  LoadWeightsFromEnv(),
		log:      logger.New("routing-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlanRequest bundles the inputs to one plan call.
type PlanRequest struct {
	Route   RouteContext
	Payment types.PaymentContext
	Options Options
}

// Plan selects a facilitator for the payment. Steps run in a fixed order:
// cache short-circuit, static override, anomaly gate, scoring, selection
// with live failover, decision persistence. An empty SelectedID with no
// cache hit means no route exists.
func (e *Engine) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	mode := req.Options.Mode
	if !IsValidMode(string(mode)) {
		mode = ModeBalanced
	}

	// Step 1: cache short-circuit.
	if e.cache != nil && req.Route.TenantID != "" && req.Route.ContentKey != "" {
		result, err := e.cache.Lookup(ctx, req.Route.ContentKey, req.Route.TenantID)
		if err != nil {
			e.log.Warn(req.Route.TenantID, req.Route.RequestID, "Cache lookup failed - continuing to scoring", map[string]interface{}{
				"error": err.Error(),
			})
		} else if result.Hit {
			plan := &Plan{SelectedID: SelectedCacheID, CacheHit: true, Mode: mode}
			e.persistDecision(ctx, req, plan)
			return plan, nil
		}
	}

	// Step 2: static override.
	if selected := e.matchOverride(ctx, req.Route); selected != "" {
		plan := &Plan{
			SelectedID: selected,
			Mode:       mode,
			Candidates: []ScoredCandidate{{
				FacilitatorID: selected,
				Score:         baseScore,
				Supported:     true,
			}},
		}
		e.persistDecision(ctx, req, plan)
		return plan, nil
	}

	// Step 3: proactive anomaly gate.
	if e.scanner != nil {
		result, err := e.scanner.Scan(ctx, ScanRequest{
			TenantID:  req.Route.TenantID,
			BuyerID:   req.Route.BuyerID,
			Task:      req.Route.Task,
			AmountUSD: req.Payment.AmountUSD(),
			Network:   req.Payment.Network,
		})
		if err != nil {
			// Scanner failures fail open.
			e.log.Warn(req.Route.TenantID, req.Route.RequestID, "Risk scan failed - proceeding without gate", map[string]interface{}{
				"error": err.Error(),
			})
		} else if vetoes(result) {
			plan := &Plan{Mode: mode, Vetoed: true, VetoReason: result.Reason}
			e.persistDecision(ctx, req, plan)
			return plan, nil
		} else if result != nil && result.Anomaly && IsValidMode(result.SuggestedMode) {
			e.log.Info(req.Route.TenantID, req.Route.RequestID, "Risk scan downgraded routing mode", map[string]interface{}{
				"from": string(mode),
				"to":   result.SuggestedMode,
			})
			mode = Mode(result.SuggestedMode)
		}
	}

	// Step 4: scoring.
	candidates := e.registry.Candidates(req.Payment.Network, req.Payment.Scheme, req.Payment.Asset)
	scored := make([]ScoredCandidate, 0, len(candidates))
	byID := make(map[string]*facilitator.Candidate, len(candidates))

	for _, c := range candidates {
		byID[c.Adapter.ID()] = c
		score, reason := scoreCandidate(c, mode, e.weights, &req.Payment, req.Route.Task)
		scored = append(scored, ScoredCandidate{
			FacilitatorID:   c.Adapter.ID(),
			Name:            c.Adapter.Name(),
			Score:           score,
			Health:          c.Health.Status,
			BaseFeeUSD:      c.BaseFeeUSD,
			Supported:       true,
			RejectionReason: reason,
		})
	}

	// Step 5: selection with failover.
	sortCandidates(scored)
	plan := &Plan{Candidates: scored, Mode: mode}
	plan.SelectedID = e.selectWithFailover(ctx, scored, byID, req.Options.ProbeTimeout, req.Route)

	// Step 6: decision persistence.
	e.persistDecision(ctx, req, plan)
	return plan, nil
}

// sortCandidates orders by score descending; ties break on the supported
// flag, then on ID for determinism.
func sortCandidates(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Supported != scored[j].Supported {
			return scored[i].Supported
		}
		return scored[i].FacilitatorID < scored[j].FacilitatorID
	})
}

// selectWithFailover picks the top-scoring candidate, probing it live when
// its cached health is anything but healthy. A probe reporting down fails
// over to the next positive-score candidate.
func (e *Engine) selectWithFailover(ctx context.Context, scored []ScoredCandidate, byID map[string]*facilitator.Candidate, probeTimeout time.Duration, route RouteContext) string {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	for i := range scored {
		candidate := &scored[i]
		if candidate.Score <= 0 {
			continue
		}

		fc := byID[candidate.FacilitatorID]
		if fc == nil {
			// Override-injected entries have no adapter to probe.
			return candidate.FacilitatorID
		}

		if fc.Health.Status == facilitator.HealthStatusHealthy {
			return candidate.FacilitatorID
		}

		// Live probe before trusting a non-healthy cached snapshot.
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		snapshot, err := fc.Adapter.Probe(probeCtx)
		cancel()

		if err != nil || snapshot.Status == facilitator.HealthStatusDown {
			candidate.RejectionReason = "live probe reported down"
			e.registry.SetHealth(candidate.FacilitatorID, facilitator.HealthSnapshot{
				Status:      facilitator.HealthStatusDown,
				LastChecked: time.Now().UTC(),
			})
			e.log.Warn(route.TenantID, route.RequestID, "Failover: probe reported down", map[string]interface{}{
				"facilitator_id": candidate.FacilitatorID,
			})
			continue
		}

		e.registry.SetHealth(candidate.FacilitatorID, snapshot)
		return candidate.FacilitatorID
	}

	return ""
}

func (e *Engine) matchOverride(ctx context.Context, route RouteContext) string {
	if e.repo == nil || route.TenantID == "" || route.Task == "" {
		return ""
	}

	overrides, err := e.repo.GetOverrides(ctx, route.TenantID)
	if err != nil {
		e.log.Warn(route.TenantID, route.RequestID, "Failed to load overrides - skipping", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}

	for _, o := range overrides {
		if matched, err := path.Match(o.Pattern, route.Task); err == nil && matched {
			return o.FacilitatorID
		}
	}
	return ""
}

func (e *Engine) persistDecision(ctx context.Context, req PlanRequest, plan *Plan) {
	if e.repo == nil {
		return
	}

	decision := &Decision{
		ID:         uuid.New().String(),
		TenantID:   req.Route.TenantID,
		RequestID:  req.Route.RequestID,
		Mode:       plan.Mode,
		SelectedID: plan.SelectedID,
		CacheHit:   plan.CacheHit,
		Candidates: plan.Candidates,
		Success:    plan.SelectedID != "" && !plan.Vetoed,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.repo.SaveDecision(ctx, decision); err != nil {
		e.log.Warn(req.Route.TenantID, req.Route.RequestID, "Failed to persist routing decision", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
