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

// Package policy implements spend and compliance policy evaluation for
// payment plan requests. The engine is a pure decision function over data
// fetched from storage: it never mutates state during Evaluate, and budget
// debits happen only through the explicit usage-recording operations.
package policy

import (
	"time"

	"payrail/platform/shared/types"
)

// DenyCode identifies which policy check rejected a request.
type DenyCode string

const (
	DenyLegacyHeader          DenyCode = "LEGACY_HEADER"
	DenyProviderNotAllowed    DenyCode = "PROVIDER_NOT_ALLOWED"
	DenyProviderDenied        DenyCode = "PROVIDER_DENIED"
	DenySessionInvalid        DenyCode = "SESSION_INVALID"
	DenySessionBudgetExceeded DenyCode = "SESSION_BUDGET_EXCEEDED"
	DenyBudgetLimit           DenyCode = "BUDGET_LIMIT"
)

// DenyRules configures hard deny conditions.
type DenyRules struct {
	// LegacyHeader denies requests authenticated via the deprecated
	// shared-secret header instead of a signed payment authorization.
	LegacyHeader bool `json:"legacy_header,omitempty"`

	// MissingSignature denies requests whose payment payload carries no
	// signature at all.
	MissingSignature bool `json:"missing_signature,omitempty"`
}

// ProviderRules restricts which facilitators a policy permits.
// An empty allow-list permits every provider not on the deny-list.
type ProviderRules struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// BudgetRules configures policy-level spend ceilings.
type BudgetRules struct {
	// PerRequestUSD caps a single request's amount. Zero means no cap.
	PerRequestUSD float64 `json:"per_request_usd,omitempty"`
}

// RuleSet is the full rule configuration of a policy. It is immutable per
// evaluation; the engine fetches it fresh on every call.
type RuleSet struct {
	DenyIf    DenyRules     `json:"deny_if,omitempty"`
	Providers ProviderRules `json:"providers,omitempty"`
	Budgets   BudgetRules   `json:"budgets,omitempty"`
}

// Policy is a named rule set owned by a tenant.
type Policy struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name,omitempty"`
	Rules     RuleSet   `json:"rules"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BudgetStatus is the lifecycle state of a session or mandate.
type BudgetStatus string

const (
	StatusActive    BudgetStatus = "active"
	StatusExhausted BudgetStatus = "exhausted"
	StatusExpired   BudgetStatus = "expired"
	StatusRevoked   BudgetStatus = "revoked"
)

// Session is a budget holder tied to a caller session. Spend is monotonic:
// recordUsage only ever increases SpentUSD, and SpentUSD never exceeds
// TotalBudgetUSD.
type Session struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	Status         BudgetStatus `json:"status"`
	TotalBudgetUSD float64      `json:"total_budget_usd"`
	SpentUSD       float64      `json:"spent_usd"`
	Categories     []string     `json:"categories,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RemainingUSD returns the unspent budget.
func (s *Session) RemainingUSD() float64 {
	return s.TotalBudgetUSD - s.SpentUSD
}

// Mandate is a scoped, budgeted authorization for an agent to spend up to a
// limit within category and expiry constraints.
type Mandate struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	AgentID        string       `json:"agent_id,omitempty"`
	Status         BudgetStatus `json:"status"`
	TotalBudgetUSD float64      `json:"total_budget_usd"`
	SpentUSD       float64      `json:"spent_usd"`
	Categories     []string     `json:"categories,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RemainingUSD returns the unspent budget.
func (m *Mandate) RemainingUSD() float64 {
	return m.TotalBudgetUSD - m.SpentUSD
}

// AllowsCategory reports whether a spend category is permitted.
// An empty category list permits every category.
func (m *Mandate) AllowsCategory(category string) bool {
	if len(m.Categories) == 0 {
		return true
	}
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// EvalContext carries the request attributes the engine evaluates.
type EvalContext struct {
	TenantID         string
	RequestID        string
	AmountUSD        float64
	LegacyHeaderUsed bool
	HasSignature     bool
	Network          types.Network
	Scheme           types.Scheme
	Asset            string
	SessionToken     string
	ProviderID       string
}

// Decision is the result of a policy evaluation. Denials are expected,
// non-fatal outcomes and are never surfaced as errors.
type Decision struct {
	Allow    bool     `json:"allow"`
	Deny     DenyCode `json:"deny,omitempty"`
	Reasons  []string `json:"reasons"`
	PolicyID string   `json:"policy_id,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
}

// MandateVerification is the outcome of verifying a mandate for a spend.
type MandateVerification struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
