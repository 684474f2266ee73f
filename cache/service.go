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

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"payrail/platform/shared/logger"
)

// Service is the two-tier cache: redis-fronted exact match first, then
// embedding similarity within the tenant. Embedding failures degrade to
// exact-match-only and are never surfaced as lookup errors.
type Service struct {
	store    Store
	hot      *RedisLayer
	embedder Embedder
	log      *logger.Logger

	// scanLimit bounds how many embedded rows a fuzzy lookup compares.
	scanLimit int
}

// ServiceOption configures the cache service.
type ServiceOption func(*Service)

// WithHotLayer fronts the store with a redis exact-match layer.
func WithHotLayer(hot *RedisLayer) ServiceOption {
	return func(s *Service) {
		s.hot = hot
	}
}

// WithEmbedder enables fuzzy lookups. A nil embedder leaves the cache
// exact-match-only.
func WithEmbedder(embedder Embedder) ServiceOption {
	return func(s *Service) {
		s.embedder = embedder
	}
}

// WithScanLimit bounds the fuzzy comparison set.
func WithScanLimit(limit int) ServiceOption {
	return func(s *Service) {
		s.scanLimit = limit
	}
}

// NewService creates a cache service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		log:       logger.New("cache"),
		scanLimit: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashContent returns the deterministic cache key for request content.
// Content is trimmed so insignificant surrounding whitespace does not split
// cache entries.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Lookup finds a cached response for the content within the tenant's scope.
func (s *Service) Lookup(ctx context.Context, content, tenantID string) (*Result, error) {
	requestHash := HashContent(content)

	// Hot exact tier.
	if entry := s.hot.Get(ctx, tenantID, requestHash); entry != nil {
		// Keep the durable usage counters in step with hot hits.
		if err := s.store.RecordUsage(ctx, entry.ID); err != nil {
			s.log.Warn(tenantID, "", "Failed to record hot cache usage", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return &Result{Hit: true, Exact: true, Similarity: 1.0, Entry: entry}, nil
	}

	// Durable exact tier.
	entry, err := s.store.GetExact(ctx, tenantID, requestHash)
	if err == nil {
		if herr := s.hot.Set(ctx, entry); herr != nil {
			s.log.Warn(tenantID, "", "Failed to populate hot cache", map[string]interface{}{
				"error": herr.Error(),
			})
		}
		return &Result{Hit: true, Exact: true, Similarity: 1.0, Entry: entry}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Fuzzy tier.
	return s.fuzzyLookup(ctx, content, tenantID)
}

func (s *Service) fuzzyLookup(ctx context.Context, content, tenantID string) (*Result, error) {
	if s.embedder == nil {
		return &Result{Hit: false}, nil
	}

	queryEmbedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.log.Warn(tenantID, "", "Embedding failed - degrading to exact-match only", map[string]interface{}{
			"error": err.Error(),
		})
		return &Result{Hit: false}, nil
	}

	threshold, err := s.store.TenantThreshold(ctx, tenantID)
	if err != nil {
		threshold = DefaultSimilarityThreshold
	}

	entries, err := s.store.ListEmbedded(ctx, tenantID, s.scanLimit)
	if err != nil {
		return nil, err
	}

	var best *Entry
	bestScore := 0.0
	for _, candidate := range entries {
		score := CosineSimilarity(queryEmbedding, candidate.Embedding)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	if best == nil || bestScore < threshold {
		return &Result{Hit: false}, nil
	}

	if err := s.store.RecordUsage(ctx, best.ID); err != nil {
		s.log.Warn(tenantID, "", "Failed to record fuzzy cache usage", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return &Result{Hit: true, Exact: false, Similarity: bestScore, Entry: best}, nil
}

// Store caches a response for the content. The embedding is computed best
// effort; on failure the entry is stored without one and remains reachable
// via exact match.
func (s *Service) Store(ctx context.Context, content, response, tenantID, modelTag string) error {
	entry := &Entry{
		TenantID:    tenantID,
		RequestHash: HashContent(content),
		Response:    response,
		ModelTag:    modelTag,
	}

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.log.Warn(tenantID, "", "Embedding failed - storing exact-only entry", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			entry.Embedding = embedding
		}
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return err
	}

	if err := s.hot.Set(ctx, entry); err != nil {
		s.log.Warn(tenantID, "", "Failed to populate hot cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return nil
}
