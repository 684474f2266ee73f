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

// Package routing implements facilitator selection for payment plan
// requests: multi-criteria scoring by routing mode, static overrides,
// an anomaly gate, and health-based failover.
package routing

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Mode defines how the routing engine weighs candidates.
type Mode string

const (
	// ModeCost favors low fees and direct, non-bridge settlement.
	ModeCost Mode = "cost"

	// ModeSpeed penalizes p95 latency in stepped bands.
	ModeSpeed Mode = "speed"

	// ModeQuality favors reputation and high success rates.
	ModeQuality Mode = "quality"

	// ModeBalanced blends cost, speed, and quality by configured weights.
	ModeBalanced Mode = "balanced"
)

// ValidModes contains all valid routing mode values.
var ValidModes = []Mode{ModeCost, ModeSpeed, ModeQuality, ModeBalanced}

// IsValidMode checks if a string is a valid routing mode.
func IsValidMode(s string) bool {
	for _, valid := range ValidModes {
		if Mode(s) == valid {
			return true
		}
	}
	return false
}

// Weights configures the balanced-mode blend. Weights are normalized to sum
// to 1.0 at load time.
type Weights struct {
	Cost    float64
	Speed   float64
	Quality float64
}

// DefaultWeights gives each criterion equal influence.
func DefaultWeights() Weights {
	third := 1.0 / 3.0
	return Weights{Cost: third, Speed: third, Quality: third}
}

// LoadWeightsFromEnv loads balanced-mode weights from ROUTING_WEIGHTS
// (format: "cost:0.4,speed:0.3,quality:0.3"). Parse failures degrade to
// equal weights rather than failing the request path.
func LoadWeightsFromEnv() Weights {
	weightsStr := os.Getenv("ROUTING_WEIGHTS")
	if weightsStr == "" {
		return DefaultWeights()
	}

	weights, err := ParseWeights(weightsStr)
	if err != nil {
		log.Printf("[Routing] WARNING: Failed to parse ROUTING_WEIGHTS '%s': %v - using equal weights", weightsStr, err)
		return DefaultWeights()
	}
	return weights
}

// ParseWeights parses a weights string into a normalized Weights value.
// Format: "cost:0.4,speed:0.3,quality:0.3". Unlisted criteria get weight 0.
func ParseWeights(weightsStr string) (Weights, error) {
	values := map[string]float64{}
	total := 0.0

	for _, part := range strings.Split(weightsStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.Split(part, ":")
		if len(kv) != 2 {
			return Weights{}, fmt.Errorf("invalid weight format '%s', expected 'criterion:weight'", part)
		}

		criterion := strings.TrimSpace(kv[0])
		weight, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("invalid weight value for '%s': %w", criterion, err)
		}
		if weight < 0 {
			return Weights{}, fmt.Errorf("negative weight %f for '%s'", weight, criterion)
		}

		switch criterion {
		case "cost", "speed", "quality":
			values[criterion] = weight
			total += weight
		default:
			return Weights{}, fmt.Errorf("unknown criterion '%s'", criterion)
		}
	}

	if total == 0 {
		return Weights{}, fmt.Errorf("weights sum to zero")
	}

	return Weights{
		Cost:    values["cost"] / total,
		Speed:   values["speed"] / total,
		Quality: values["quality"] / total,
	}, nil
}
