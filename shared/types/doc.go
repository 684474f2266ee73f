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

/*
Package types provides shared type definitions used across PayRail components.

# Overview

This package contains the payment primitives shared between the Router and
Settlement services: networks (CAIP-2 identifiers), payment schemes, and the
per-network asset registry (token addresses, EIP-712 domain parameters,
decimals). It provides a single source of truth so that routing decisions and
on-chain settlement agree on what a given (network, scheme, asset) tuple means.

# Amounts

Amounts cross service boundaries as decimal strings ("1.50") and are converted
to smallest-unit big.Int values at the settlement boundary:

	value, err := types.ParseAmount("1.50", 6) // 1500000

# Thread Safety

All types in this package are value types and are safe for concurrent use.
The NetworkConfigs registry is read-only after package initialization.
*/
package types
