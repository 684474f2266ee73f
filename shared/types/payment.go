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

// Package types provides shared type definitions used across PayRail components.
// This file defines the payment primitives (networks, schemes, assets) shared
// by the routing and settlement services.
package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Network identifies a blockchain network in CAIP-2 form (e.g. "eip155:8453").
type Network string

const (
	// NetworkBase is Base mainnet.
	NetworkBase Network = "eip155:8453"
	// NetworkBaseSepolia is the Base Sepolia testnet.
	NetworkBaseSepolia Network = "eip155:84532"
	// NetworkPolygon is Polygon PoS mainnet.
	NetworkPolygon Network = "eip155:137"
)

// String returns the string representation of the Network.
func (n Network) String() string {
	return string(n)
}

// Scheme identifies a payment scheme.
type Scheme string

const (
	// SchemeExact is an exact-amount payment settled via EIP-3009
	// transferWithAuthorization or a verified on-chain transfer.
	SchemeExact Scheme = "exact"
)

// AssetInfo describes a settlement asset on a specific network.
type AssetInfo struct {
	// Address is the token contract address.
	Address string `json:"address"`
	// Symbol is the display symbol (e.g. "USDC").
	Symbol string `json:"symbol"`
	// Name is the EIP-712 domain name of the token (e.g. "USD Coin").
	Name string `json:"name"`
	// Version is the EIP-712 domain version of the token.
	Version string `json:"version"`
	// Decimals is the token decimal precision.
	Decimals int `json:"decimals"`
}

// NetworkConfig holds per-network settlement parameters.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
	Assets       map[string]AssetInfo // keyed by lowercase address and by symbol
}

// NetworkConfigs maps supported networks to their configuration.
// Asset addresses follow the canonical USDC deployments per chain.
var NetworkConfigs = map[Network]NetworkConfig{
	NetworkBase: {
		ChainID: big.NewInt(8453),
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Symbol:   "USDC",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkBaseSepolia: {
		ChainID: big.NewInt(84532),
		DefaultAsset: AssetInfo{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Symbol:   "USDC",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkPolygon: {
		ChainID: big.NewInt(137),
		DefaultAsset: AssetInfo{
			Address:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			Symbol:   "USDC",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
}

// IsValidNetwork returns true if the network is supported for settlement.
func IsValidNetwork(network Network) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig returns the configuration for a network.
func GetNetworkConfig(network Network) (NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", network)
	}
	return config, nil
}

// GetAssetInfo resolves an asset by address or symbol on a network.
func GetAssetInfo(network Network, asset string) (AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return AssetInfo{}, err
	}
	if asset == "" {
		return config.DefaultAsset, nil
	}
	if strings.EqualFold(asset, config.DefaultAsset.Address) ||
		strings.EqualFold(asset, config.DefaultAsset.Symbol) {
		return config.DefaultAsset, nil
	}
	if config.Assets != nil {
		if info, ok := config.Assets[strings.ToLower(asset)]; ok {
			return info, nil
		}
	}
	return AssetInfo{}, fmt.Errorf("unsupported asset %q on network %s", asset, network)
}

// PaymentContext describes the payment a plan or settle call is about.
type PaymentContext struct {
	Network Network `json:"network"`
	Scheme  Scheme  `json:"scheme"`
	Asset   string  `json:"asset"`
	// Amount is a decimal string in the asset's display unit (e.g. "1.50").
	Amount string `json:"amount"`
	// SourceNetwork is set when the payer funds live on a different network
	// than the settlement network (cross-chain payments).
	SourceNetwork Network `json:"source_network,omitempty"`
	// LegacyHeaderUsed marks requests authenticated with the deprecated
	// X-Payment header instead of a signed payload.
	LegacyHeaderUsed bool `json:"legacy_header_used,omitempty"`
}

// CrossChain returns true when the payment settles on a different network
// than it is funded on.
func (p PaymentContext) CrossChain() bool {
	return p.SourceNetwork != "" && p.SourceNetwork != p.Network
}

// AmountUSD returns the amount as a float for scoring and policy checks.
// Settlement paths never use this; on-chain values go through ParseAmount.
func (p PaymentContext) AmountUSD() float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(p.Amount), 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseAmount converts a decimal amount string to the smallest token unit.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	parts := strings.SplitN(amount, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %s exceeds %d decimal places", amount, decimals)
	}
	frac = frac + strings.Repeat("0", decimals-len(frac))
	combined := whole + frac
	value, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", amount)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}
	return value, nil
}

// FormatAmount converts a smallest-unit value back to a decimal string.
func FormatAmount(value *big.Int, decimals int) string {
	s := value.String()
	if decimals == 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= decimals {
		s = "0" + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
