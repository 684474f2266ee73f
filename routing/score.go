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
	"payrail/platform/facilitator"
	"payrail/platform/shared/types"
)

// Scoring constants. Bonuses are additive with no cap beyond the zero floor.
const (
	baseScore = 100.0

	healthDegradedPenalty = -50.0
	healthUnknownPenalty  = -10.0

	reliabilityPenaltyScale = 200.0

	settlementContractBonus = 200.0

	capabilityBonusScale = 100.0

	crossChainBridgeBonus      = 50.0
	crossChainNonBridgePenalty = -300.0

	// Cost-mode signals: fees scale into score points, and direct
	// settlement is preferred over bridged settlement.
	costFeePenaltyScale = 1000.0
	costDirectBonus     = 25.0
	costBridgePenalty   = -25.0

	// Speed-mode latency bands (p95, milliseconds).
	speedPenaltySlow   = -80.0 // > 2000ms
	speedPenaltyMedium = -40.0 // > 1000ms
	speedPenaltyMild   = -10.0 // > 500ms
	speedBonusFast     = 20.0  // < 200ms

	qualityLowSuccessPenalty = -50.0
	qualityMinSuccessRate    = 0.99
)

// scoreCandidate computes the score for one candidate. A zero return with a
// non-empty reason means the candidate is excluded.
func scoreCandidate(c *facilitator.Candidate, mode Mode, weights Weights, pc *types.PaymentContext, task string) (float64, string) {
	if c.Health.Status == facilitator.HealthStatusDown {
		return 0, "health is down"
	}

	score := baseScore

	switch c.Health.Status {
	case facilitator.HealthStatusDegraded:
		score += healthDegradedPenalty
	case facilitator.HealthStatusUnknown:
		score += healthUnknownPenalty
	}

	bridging := pc.CrossChain() && c.BridgeCapable(pc.SourceNetwork, pc.Network)

	switch mode {
	case ModeCost:
		score += costAdjustment(c, bridging)
	case ModeSpeed:
		score += speedAdjustment(c.Health.P95LatencyMs)
	case ModeQuality:
		score += qualityAdjustment(c)
	case ModeBalanced:
		score += weights.Cost*costAdjustment(c, bridging) +
			weights.Speed*speedAdjustment(c.Health.P95LatencyMs) +
			weights.Quality*qualityAdjustment(c)
	}

	// Reliability penalty. Skipped for never-probed candidates, whose zero
	// success rate means "no data", not "always failing".
	if !c.Health.LastChecked.IsZero() {
		score -= (1 - c.Health.SuccessRate) * reliabilityPenaltyScale
	}

	if payCfg := c.Adapter.PaymentConfig(); payCfg != nil && payCfg.Mode == facilitator.SettlementModeContract {
		score += settlementContractBonus
	}

	score += c.Caps.Score(task) * capabilityBonusScale

	if pc.CrossChain() {
		if bridging {
			score += crossChainBridgeBonus
		} else {
			score += crossChainNonBridgePenalty
		}
	}

	if score < 0 {
		score = 0
	}
	return score, ""
}

func costAdjustment(c *facilitator.Candidate, bridging bool) float64 {
	adj := -c.BaseFeeUSD * costFeePenaltyScale
	if bridging {
		adj += costBridgePenalty
	} else {
		adj += costDirectBonus
	}
	return adj
}

func speedAdjustment(p95Ms int64) float64 {
	switch {
	case p95Ms > 2000:
		return speedPenaltySlow
	case p95Ms > 1000:
		return speedPenaltyMedium
	case p95Ms > 500:
		return speedPenaltyMild
	case p95Ms > 0 && p95Ms < 200:
		return speedBonusFast
	default:
		return 0
	}
}

func qualityAdjustment(c *facilitator.Candidate) float64 {
	adj := c.Reputation - 100
	if !c.Health.LastChecked.IsZero() && c.Health.SuccessRate < qualityMinSuccessRate {
		adj += qualityLowSuccessPenalty
	}
	return adj
}
