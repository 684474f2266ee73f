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

package facilitator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payrail/platform/shared/types"
)

// Config describes one facilitator. It is the unified configuration format
// loaded from the database or from a YAML file at startup.
type Config struct {
	// ID is the stable facilitator identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// Endpoint is the facilitator's API base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// HealthPath overrides the default "/health" probe path.
	HealthPath string `json:"health_path,omitempty" yaml:"health_path,omitempty"`

	// Networks lists supported destination networks (CAIP-2).
	Networks []types.Network `json:"networks" yaml:"networks"`

	// Schemes lists supported payment schemes. Empty means "exact" only.
	Schemes []types.Scheme `json:"schemes,omitempty" yaml:"schemes,omitempty"`

	// Assets lists supported asset symbols or addresses per network.
	// Empty means the network's default asset only.
	Assets []string `json:"assets,omitempty" yaml:"assets,omitempty"`

	// Bridge maps source networks to the destination networks this
	// facilitator can bridge to. Nil means no bridging capability.
	Bridge map[types.Network][]types.Network `json:"bridge,omitempty" yaml:"bridge,omitempty"`

	// Payment carries the advertised settlement configuration.
	Payment *PaymentConfig `json:"payment,omitempty" yaml:"payment,omitempty"`

	// BaseFeeUSD is the per-call fee used by cost-mode routing.
	BaseFeeUSD float64 `json:"base_fee_usd" yaml:"base_fee_usd"`

	// Reputation is the operator-assigned reputation score (neutral = 100).
	Reputation float64 `json:"reputation,omitempty" yaml:"reputation,omitempty"`

	// Capabilities maps task identifiers to declared scores in [0, 1].
	Capabilities Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`

	// Enabled indicates if this facilitator is available for routing.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Validate checks that the config is complete enough to build an adapter.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required for %s", ErrInvalidConfig, c.ID)
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("%w: at least one network is required for %s", ErrInvalidConfig, c.ID)
	}
	for _, n := range c.Networks {
		if !types.IsValidNetwork(n) {
			return fmt.Errorf("%w: unknown network %q for %s", ErrInvalidConfig, n, c.ID)
		}
	}
	for _, s := range c.Capabilities {
		if s < 0 || s > 1 {
			return fmt.Errorf("%w: capability score out of range for %s", ErrInvalidConfig, c.ID)
		}
	}
	return nil
}

// HTTPAdapter is the standard facilitator adapter. It answers capability
// queries from static configuration and probes health over HTTP.
// It covers the direct, bridge, and settlement-contract variants; the variant
// is determined by the Bridge map and PaymentConfig mode.
type HTTPAdapter struct {
	config Config
	client *http.Client
}

// compile-time interface compliance checks
var (
	_ Adapter       = (*HTTPAdapter)(nil)
	_ BridgeCapable = (*HTTPAdapter)(nil)
)

// NewHTTPAdapter creates an adapter from a validated config.
func NewHTTPAdapter(config Config) (*HTTPAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Reputation == 0 {
		config.Reputation = 100
	}
	if len(config.Schemes) == 0 {
		config.Schemes = []types.Scheme{types.SchemeExact}
	}
	return &HTTPAdapter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ID returns the facilitator identifier.
func (a *HTTPAdapter) ID() string {
	return a.config.ID
}

// Name returns the display name, falling back to the ID.
func (a *HTTPAdapter) Name() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	return a.config.ID
}

// Endpoint returns the facilitator's API base URL.
func (a *HTTPAdapter) Endpoint() string {
	return a.config.Endpoint
}

// PaymentConfig returns the advertised settlement configuration.
func (a *HTTPAdapter) PaymentConfig() *PaymentConfig {
	return a.config.Payment
}

// Config returns a copy of the adapter's configuration.
func (a *HTTPAdapter) Config() Config {
	return a.config
}

// Supports reports whether the facilitator can settle the payment tuple.
// An empty asset resolves to the network's default asset.
func (a *HTTPAdapter) Supports(network types.Network, scheme types.Scheme, asset string) bool {
	if !a.supportsNetwork(network) {
		return false
	}
	if !a.supportsScheme(scheme) {
		return false
	}
	return a.supportsAsset(network, asset)
}

func (a *HTTPAdapter) supportsNetwork(network types.Network) bool {
	for _, n := range a.config.Networks {
		if n == network {
			return true
		}
	}
	return false
}

func (a *HTTPAdapter) supportsScheme(scheme types.Scheme) bool {
	for _, s := range a.config.Schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

func (a *HTTPAdapter) supportsAsset(network types.Network, asset string) bool {
	// The asset registry resolves symbols, addresses, and the empty
	// default uniformly; an unknown asset fails closed.
	resolved, err := types.GetAssetInfo(network, asset)
	if err != nil {
		return false
	}
	if len(a.config.Assets) == 0 {
		// Default asset only.
		def, err := types.GetAssetInfo(network, "")
		if err != nil {
			return false
		}
		return strings.EqualFold(resolved.Address, def.Address)
	}
	for _, configured := range a.config.Assets {
		if strings.EqualFold(configured, resolved.Address) || strings.EqualFold(configured, resolved.Symbol) {
			return true
		}
	}
	return false
}

// BridgeSupports reports whether the adapter can bridge from source to destination.
func (a *HTTPAdapter) BridgeSupports(source, destination types.Network) bool {
	if a.config.Bridge == nil {
		return false
	}
	destinations, ok := a.config.Bridge[source]
	if !ok {
		return false
	}
	for _, d := range destinations {
		if d == destination {
			return true
		}
	}
	return false
}

// Probe performs a live HTTP health check against the facilitator.
//
// Status mapping: any 2xx, 401 or 403 means the endpoint is reachable and
// healthy (auth failures still prove liveness); 429 means degraded; anything
// else, including transport errors and timeouts, means down.
func (a *HTTPAdapter) Probe(ctx context.Context) (HealthSnapshot, error) {
	path := a.config.HealthPath
	if path == "" {
		path = "/health"
	}
	url := strings.TrimSuffix(a.config.Endpoint, "/") + path

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthSnapshot{Status: HealthStatusDown, LastChecked: time.Now().UTC()},
			fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := a.client.Do(req)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		return HealthSnapshot{
			Status:       HealthStatusDown,
			P95LatencyMs: latencyMs,
			LastChecked:  time.Now().UTC(),
		}, fmt.Errorf("failed to probe facilitator %s: %w", a.config.ID, err)
	}
	defer resp.Body.Close()

	snapshot := HealthSnapshot{
		P95LatencyMs: latencyMs,
		SuccessRate:  1.0,
		LastChecked:  time.Now().UTC(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		snapshot.Status = HealthStatusHealthy
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		snapshot.Status = HealthStatusHealthy
	case resp.StatusCode == http.StatusTooManyRequests:
		snapshot.Status = HealthStatusDegraded
	default:
		snapshot.Status = HealthStatusDown
		snapshot.SuccessRate = 0
	}

	return snapshot, nil
}
