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

// Package cache implements the two-tier response cache: an exact-match layer
// keyed by content hash (redis hot layer backed by postgres) and a fuzzy
// layer using embedding similarity. Entries are strictly tenant-scoped and
// never shared across tenants.
package cache

import "time"

// Entry is one cached request/response pair.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	RequestHash string    `json:"request_hash"`
	Response    string    `json:"response"`
	ModelTag    string    `json:"model_tag,omitempty"`
	Embedding   []float64 `json:"embedding,omitempty"`
	UsageCount  int64     `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// Result is the outcome of a cache lookup. A fuzzy hit carries the cosine
// similarity of the matched entry; exact hits report similarity 1.0.
type Result struct {
	Hit        bool    `json:"hit"`
	Exact      bool    `json:"exact"`
	Similarity float64 `json:"similarity,omitempty"`
	Entry      *Entry  `json:"entry,omitempty"`
}

// DefaultSimilarityThreshold is used when a tenant has no configured
// threshold.
const DefaultSimilarityThreshold = 0.85
