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

// Package main is the entry point for the PayRail Settlement service.
//
// The Settlement service verifies and executes on-chain payments:
// - Claims transaction identifiers atomically (exactly-once settlement)
// - Verifies submitted transactions against the chain
// - Executes EIP-3009 gasless authorizations on behalf of payers
// - Records an append-only settlement event trail
//
// Usage:
//
//	./settlement
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8082)
//	DATABASE_URL - PostgreSQL connection string
//	CHAIN_RPC_BASE / CHAIN_RPC_BASE_SEPOLIA / CHAIN_RPC_POLYGON - RPC endpoints
//	SETTLEMENT_SIGNER_KEY - hex private key for gasless execution
//	SETTLEMENT_SIGNER_SECRET_ARN - AWS Secrets Manager alternative to the raw key
package main

import (
	"payrail/platform/settlement"
)

func main() {
	settlement.Run()
}
