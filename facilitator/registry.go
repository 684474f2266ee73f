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
	"sort"
	"sync"
	"time"

	"payrail/platform/shared/logger"
	"payrail/platform/shared/types"
)

// Candidate is the routing engine's view of one facilitator: its adapter
// together with the registry's cached health snapshot and scoring inputs.
type Candidate struct {
	Adapter    Adapter
	Health     HealthSnapshot
	BaseFeeUSD float64
	Reputation float64
	Caps       Capabilities
}

// BridgeCapable reports whether the candidate can bridge from source to
// destination. Non-bridge adapters always return false.
func (c *Candidate) BridgeCapable(source, destination types.Network) bool {
	bridge, ok := c.Adapter.(BridgeCapable)
	if !ok {
		return false
	}
	return bridge.BridgeSupports(source, destination)
}

// Registry manages facilitator adapters with cached health snapshots.
// It is safe for concurrent access.
//
// Health snapshots are refreshed by a background loop; the routing engine
// reads the cached snapshot and never blocks on a probe, except during
// failover where it probes a single candidate with a bounded timeout.
type Registry struct {
	store Store
	log   *logger.Logger

	mu       sync.RWMutex
	adapters map[string]Adapter
	configs  map[string]Config

	healthMu sync.RWMutex
	health   map[string]HealthSnapshot
}

// Store defines the interface for persistent facilitator configuration and
// health storage. Implement this to sync facilitators across replicas.
type Store interface {
	// ListFacilitators returns all enabled facilitator configs.
	ListFacilitators(ctx context.Context) ([]Config, error)

	// GetHealth returns the last recorded health snapshot for a facilitator.
	GetHealth(ctx context.Context, id string) (*HealthSnapshot, error)

	// SaveHealth records a health snapshot.
	SaveHealth(ctx context.Context, id string, snapshot HealthSnapshot) error
}

// RegistryOption configures the registry during creation.
type RegistryOption func(*Registry)

// WithStore sets persistent storage for the registry.
func WithStore(store Store) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

// NewRegistry creates an empty facilitator registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		configs:  make(map[string]Config),
		health:   make(map[string]HealthSnapshot),
		log:      logger.New("facilitator-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter built from the given config.
func (r *Registry) Register(config Config) error {
	adapter, err := NewHTTPAdapter(config)
	if err != nil {
		return err
	}
	return r.RegisterAdapter(adapter, adapter.Config())
}

// RegisterAdapter adds a pre-built adapter to the registry.
func (r *Registry) RegisterAdapter(adapter Adapter, config Config) error {
	if adapter == nil || adapter.ID() == "" {
		return fmt.Errorf("%w: adapter with empty id", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[adapter.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, adapter.ID())
	}
	r.adapters[adapter.ID()] = adapter
	r.configs[adapter.ID()] = config

	r.log.Info("", "", "Registered facilitator", map[string]interface{}{
		"facilitator_id": adapter.ID(),
		"endpoint":       adapter.Endpoint(),
		"networks":       config.Networks,
	})
	return nil
}

// Get returns a registered adapter by ID.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return adapter, nil
}

// List returns all registered facilitator IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Candidates returns every facilitator that supports the payment tuple,
// paired with its cached health snapshot and scoring inputs. Facilitators
// that have never been probed report unknown health; the routing engine
// treats unknown as a mild penalty rather than exclusion.
func (r *Registry) Candidates(network types.Network, scheme types.Scheme, asset string) []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Candidate
	for id, adapter := range r.adapters {
		if !adapter.Supports(network, scheme, asset) {
			continue
		}
		config := r.configs[id]
		candidates = append(candidates, &Candidate{
			Adapter:    adapter,
			Health:     r.healthFor(id),
			BaseFeeUSD: config.BaseFeeUSD,
			Reputation: config.Reputation,
			Caps:       config.Capabilities,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Adapter.ID() < candidates[j].Adapter.ID()
	})
	return candidates
}

// BridgeCandidates returns facilitators able to bridge a cross-chain payment
// from source into the destination network.
func (r *Registry) BridgeCandidates(source, destination types.Network, scheme types.Scheme, asset string) []*Candidate {
	var candidates []*Candidate
	for _, c := range r.Candidates(destination, scheme, asset) {
		if c.BridgeCapable(source, destination) {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func (r *Registry) healthFor(id string) HealthSnapshot {
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()

	snapshot, ok := r.health[id]
	if !ok {
		return HealthSnapshot{Status: HealthStatusUnknown}
	}
	return snapshot
}

// Health returns the cached health snapshot for a facilitator.
func (r *Registry) Health(id string) HealthSnapshot {
	return r.healthFor(id)
}

// SetHealth replaces the cached health snapshot for a facilitator.
func (r *Registry) SetHealth(id string, snapshot HealthSnapshot) {
	r.healthMu.Lock()
	r.health[id] = snapshot
	r.healthMu.Unlock()
}

// ProbeAll probes every registered facilitator and updates the cached
// snapshots. Probe failures mark the facilitator down, never abort the sweep.
func (r *Registry) ProbeAll(ctx context.Context, timeout time.Duration) {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for id, a := range r.adapters {
		adapters[id] = a
	}
	r.mu.RUnlock()

	for id, adapter := range adapters {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		snapshot, err := adapter.Probe(probeCtx)
		cancel()

		if err != nil {
			snapshot.Status = HealthStatusDown
			if snapshot.LastChecked.IsZero() {
				snapshot.LastChecked = time.Now().UTC()
			}
			r.log.Warn("", "", "Facilitator probe failed", map[string]interface{}{
				"facilitator_id": id,
				"error":          err.Error(),
			})
		}
		r.SetHealth(id, snapshot)

		if r.store != nil {
			if err := r.store.SaveHealth(ctx, id, snapshot); err != nil {
				r.log.Warn("", "", "Failed to persist health snapshot", map[string]interface{}{
					"facilitator_id": id,
					"error":          err.Error(),
				})
			}
		}
	}
}

// StartHealthLoop starts a background goroutine that probes all facilitators
// on the given interval until the context is cancelled.
func (r *Registry) StartHealthLoop(ctx context.Context, interval, probeTimeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ProbeAll(ctx, probeTimeout)
			}
		}
	}()
}

// LoadFromStore loads facilitator configs and their last recorded health from
// persistent storage. Configs already registered in memory are skipped.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	configs, err := r.store.ListFacilitators(ctx)
	if err != nil {
		return fmt.Errorf("failed to load facilitators: %w", err)
	}

	loaded := 0
	for _, config := range configs {
		r.mu.RLock()
		_, exists := r.adapters[config.ID]
		r.mu.RUnlock()
		if exists {
			continue
		}

		if err := r.Register(config); err != nil {
			r.log.Warn("", "", "Skipping facilitator with invalid config", map[string]interface{}{
				"facilitator_id": config.ID,
				"error":          err.Error(),
			})
			continue
		}
		loaded++

		if snapshot, err := r.store.GetHealth(ctx, config.ID); err == nil && snapshot != nil {
			r.SetHealth(config.ID, *snapshot)
		}
	}

	if loaded > 0 {
		r.log.Info("", "", "Loaded facilitators from store", map[string]interface{}{
			"count": loaded,
		})
	}
	return nil
}
