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

// Package facilitator provides the settlement-provider adapter abstraction.
// An adapter wraps one facilitator (a provider capable of settling a payment
// for a given network/scheme/asset) behind a uniform capability and health
// probe interface consumed by the routing engine.
package facilitator

import (
	"context"
	"time"

	"payrail/platform/shared/types"
)

// HealthStatus represents the probed health of a facilitator.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// HealthSnapshot is a point-in-time view of facilitator health. Snapshots are
// refreshed out-of-band by an external scheduler; the routing engine reads
// them as of last check and only probes live during failover.
type HealthSnapshot struct {
	Status       HealthStatus `json:"status"`
	P95LatencyMs int64        `json:"p95_latency_ms"`
	SuccessRate  float64      `json:"success_rate"`
	LastChecked  time.Time    `json:"last_checked"`
}

// SettlementMode distinguishes how a facilitator moves funds.
type SettlementMode string

const (
	// SettlementModeContract settles through the fee-enforcing settlement
	// contract. Routing prefers this path.
	SettlementModeContract SettlementMode = "contract"

	// SettlementModeTransfer settles via a raw ERC-20 transfer to the
	// treasury address.
	SettlementModeTransfer SettlementMode = "transfer"
)

// PaymentConfig carries the settlement parameters a facilitator advertises.
type PaymentConfig struct {
	TreasuryAddress string         `json:"treasury_address"`
	Mode            SettlementMode `json:"mode"`
}

// Adapter is the uniform interface over all facilitator variants.
// Implementations must be safe for concurrent use; they are stateless aside
// from configuration.
type Adapter interface {
	// ID returns the stable facilitator identifier (e.g. "fac_base_direct").
	ID() string

	// Name returns the display name.
	Name() string

	// Supports reports whether this facilitator can settle the given
	// (network, scheme, asset) tuple.
	Supports(network types.Network, scheme types.Scheme, asset string) bool

	// Probe performs a live health check. Callers bound the probe with a
	// context timeout; a timeout or error is treated as down, never fatal.
	Probe(ctx context.Context) (HealthSnapshot, error)

	// Endpoint returns the facilitator's API endpoint.
	Endpoint() string

	// PaymentConfig returns the settlement configuration, or nil when the
	// facilitator does not advertise one.
	PaymentConfig() *PaymentConfig
}

// BridgeCapable marks adapters that can settle across networks. The routing
// engine boosts bridge-capable adapters for cross-chain payments and heavily
// penalizes the rest.
type BridgeCapable interface {
	Adapter

	// BridgeSupports reports whether the adapter can bridge from the source
	// network to the destination network.
	BridgeSupports(source, destination types.Network) bool
}

// Capabilities maps task identifiers to declared capability scores in [0, 1].
type Capabilities map[string]float64

// Score returns the declared capability for a task, clamped to [0, 1].
// Unknown tasks score zero.
func (c Capabilities) Score(task string) float64 {
	if c == nil || task == "" {
		return 0
	}
	score, ok := c[task]
	if !ok {
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
