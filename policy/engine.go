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

package policy

import (
	"context"
	"errors"
	"fmt"

	"payrail/platform/shared/logger"
)

// Engine evaluates policies against request contexts.
// Checks run in a fixed order and the first failing check wins.
type Engine struct {
	repo   Repository
	tokens *TokenParser
	log    *logger.Logger
}

// NewEngine creates a policy engine.
func NewEngine(repo Repository, tokens *TokenParser) *Engine {
	if tokens == nil {
		tokens = NewTokenParserFromEnv()
	}
	return &Engine{
		repo:   repo,
		tokens: tokens,
		log:    logger.New("policy-engine"),
	}
}

// Evaluate runs the policy checks for a request. Denials are returned as
// structured Decision values, never as errors; the error return is reserved
// for storage failures on required reads.
//
// Check order: fail-open, legacy header, provider allow-list, provider
// deny-list, session validity, session budget, per-request budget ceiling.
func (e *Engine) Evaluate(ctx context.Context, policyID string, ec EvalContext) (*Decision, error) {
	// No policy means fail open. This covers both an absent policy ID and
	// a dangling reference.
	if policyID == "" {
		return e.allow(ec, "", "no policy specified - fail open"), nil
	}

	pol, err := e.repo.GetPolicy(ctx, policyID)
	if errors.Is(err, ErrPolicyNotFound) {
		return e.allow(ec, "", fmt.Sprintf("policy %s not found - fail open", policyID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %s: %w", policyID, err)
	}

	decision := &Decision{
		Allow:    true,
		PolicyID: pol.ID,
		TenantID: pol.TenantID,
	}

	if pol.Rules.DenyIf.LegacyHeader && ec.LegacyHeaderUsed {
		return e.deny(decision, ec, DenyLegacyHeader, "legacy authentication header is not permitted"), nil
	}
	if pol.Rules.DenyIf.MissingSignature && !ec.HasSignature {
		return e.deny(decision, ec, DenyLegacyHeader, "unsigned payment payload is not permitted"), nil
	}

	if ec.ProviderID != "" {
		if allow := pol.Rules.Providers.Allow; len(allow) > 0 && !contains(allow, ec.ProviderID) {
			return e.deny(decision, ec, DenyProviderNotAllowed,
				fmt.Sprintf("provider %s is not on the allow-list", ec.ProviderID)), nil
		}
		if contains(pol.Rules.Providers.Deny, ec.ProviderID) {
			return e.deny(decision, ec, DenyProviderDenied,
				fmt.Sprintf("provider %s is on the deny-list", ec.ProviderID)), nil
		}
	}

	if ec.SessionToken != "" {
		sessionDecision, err := e.checkSession(ctx, decision, ec)
		if err != nil {
			return nil, err
		}
		if sessionDecision != nil {
			return sessionDecision, nil
		}
	}

	if limit := pol.Rules.Budgets.PerRequestUSD; limit > 0 && ec.AmountUSD > limit {
		return e.deny(decision, ec, DenyBudgetLimit,
			fmt.Sprintf("amount %.6f exceeds per-request limit %.6f", ec.AmountUSD, limit)), nil
	}

	decision.Reasons = append(decision.Reasons, "all policy checks passed")
	return decision, nil
}

// checkSession validates the session referenced by the token. A non-nil
// Decision return is a denial; nil means the session checks passed.
func (e *Engine) checkSession(ctx context.Context, decision *Decision, ec EvalContext) (*Decision, error) {
	sessionID, err := e.tokens.SessionID(ec.SessionToken)
	if err != nil {
		return e.deny(decision, ec, DenySessionInvalid, "session token is invalid"), nil
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return e.deny(decision, ec, DenySessionInvalid,
			fmt.Sprintf("session %s does not exist", sessionID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if session.Status != StatusActive {
		return e.deny(decision, ec, DenySessionInvalid,
			fmt.Sprintf("session %s is %s", sessionID, session.Status)), nil
	}
	if ec.AmountUSD > session.RemainingUSD() {
		return e.deny(decision, ec, DenySessionBudgetExceeded,
			fmt.Sprintf("amount %.6f exceeds remaining session budget %.6f", ec.AmountUSD, session.RemainingUSD())), nil
	}

	return nil, nil
}

func (e *Engine) allow(ec EvalContext, policyID, reason string) *Decision {
	return &Decision{
		Allow:    true,
		PolicyID: policyID,
		TenantID: ec.TenantID,
		Reasons:  []string{reason},
	}
}

func (e *Engine) deny(decision *Decision, ec EvalContext, code DenyCode, reason string) *Decision {
	decision.Allow = false
	decision.Deny = code
	decision.Reasons = append(decision.Reasons, reason)

	e.log.Info(decision.TenantID, ec.RequestID, "Policy denied request", map[string]interface{}{
		"policy_id": decision.PolicyID,
		"deny_code": string(code),
		"reason":    reason,
	})
	return decision
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
