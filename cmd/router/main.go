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

// Package main is the entry point for the PayRail Router service.
//
// The Router plans paid API calls:
// - Evaluates spend and compliance policy before any routing
// - Short-circuits on cached responses
// - Scores facilitators and selects a settlement route with live failover
// - Records decision traces and emits analytics events
//
// Usage:
//
//	./router
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8081)
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_URL - optional cache hot layer
//	MONGO_URL - optional analytics sink
//	FACILITATOR_CONFIG_FILE - optional YAML facilitator config
//	ROUTING_WEIGHTS - balanced-mode weights (e.g. "cost:0.4,speed:0.3,quality:0.3")
package main

import (
	"payrail/platform/router"
)

func main() {
	router.Run()
}
