// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"context"
	"errors"
	"testing"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	entries   map[string]*Entry // keyed by tenant:hash
	threshold float64
	usage     map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		entries:   make(map[string]*Entry),
		threshold: DefaultSimilarityThreshold,
		usage:     make(map[string]int),
	}
}

func (m *memStore) key(tenantID, hash string) string { return tenantID + ":" + hash }

func (m *memStore) GetExact(ctx context.Context, tenantID, requestHash string) (*Entry, error) {
	if e, ok := m.entries[m.key(tenantID, requestHash)]; ok {
		e.UsageCount++
		return e, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) ListEmbedded(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.TenantID == tenantID && len(e.Embedding) > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(ctx context.Context, entry *Entry) error {
	k := m.key(entry.TenantID, entry.RequestHash)
	if existing, ok := m.entries[k]; ok {
		existing.Response = entry.Response
		existing.UsageCount++
		if len(entry.Embedding) > 0 {
			existing.Embedding = entry.Embedding
		}
		return nil
	}
	if entry.ID == "" {
		entry.ID = k
	}
	entry.UsageCount = 1
	m.entries[k] = entry
	return nil
}

func (m *memStore) TenantThreshold(ctx context.Context, tenantID string) (float64, error) {
	return m.threshold, nil
}

func (m *memStore) RecordUsage(ctx context.Context, id string) error {
	m.usage[id]++
	return nil
}

// stubEmbedder returns fixed vectors per content string.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, content string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[content]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func TestLookupExactHit(t *testing.T) {
	store := newMemStore()
	service := NewService(store)

	if err := service.Store(context.Background(), "what is the weather", `{"answer":"sunny"}`, "tenant-1", "model-a"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	result, err := service.Lookup(context.Background(), "what is the weather", "tenant-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !result.Hit || !result.Exact {
		t.Errorf("Expected exact hit, got hit=%v exact=%v", result.Hit, result.Exact)
	}
	if result.Similarity != 1.0 {
		t.Errorf("Expected similarity 1.0, got %v", result.Similarity)
	}

	t.Run("whitespace insensitive", func(t *testing.T) {
		result, err := service.Lookup(context.Background(), "  what is the weather  ", "tenant-1")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if !result.Hit {
			t.Error("Expected hit for trimmed content")
		}
	})

	t.Run("tenant isolation", func(t *testing.T) {
		result, err := service.Lookup(context.Background(), "what is the weather", "tenant-2")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if result.Hit {
			t.Error("Expected miss for a different tenant")
		}
	})
}

func TestLookupFuzzy(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"what is the weather today": {1, 0, 0},
		"weather today?":            {0.95, 0.05, 0},
		"capital of france":         {0, 1, 0},
	}}

	store := newMemStore()
	service := NewService(store, WithEmbedder(embedder))

	if err := service.Store(context.Background(), "what is the weather today", `{"answer":"sunny"}`, "tenant-1", ""); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	t.Run("similar content hits", func(t *testing.T) {
		result, err := service.Lookup(context.Background(), "weather today?", "tenant-1")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if !result.Hit || result.Exact {
			t.Fatalf("Expected fuzzy hit, got hit=%v exact=%v", result.Hit, result.Exact)
		}
		if result.Similarity < DefaultSimilarityThreshold {
			t.Errorf("Expected similarity above threshold, got %v", result.Similarity)
		}
	})

	t.Run("dissimilar content misses", func(t *testing.T) {
		result, err := service.Lookup(context.Background(), "capital of france", "tenant-1")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if result.Hit {
			t.Errorf("Expected miss, got hit with similarity %v", result.Similarity)
		}
	})

	t.Run("raised threshold excludes near match", func(t *testing.T) {
		store.threshold = 0.999
		defer func() { store.threshold = DefaultSimilarityThreshold }()

		result, err := service.Lookup(context.Background(), "weather today?", "tenant-1")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		if result.Hit {
			t.Error("Expected miss with raised threshold")
		}
	})
}

func TestEmbeddingFailureDegrades(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("embedding service unavailable")}
	store := newMemStore()
	service := NewService(store, WithEmbedder(embedder))

	// Store still succeeds without an embedding.
	if err := service.Store(context.Background(), "some request", `{"ok":true}`, "tenant-1", ""); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Exact lookup still works.
	result, err := service.Lookup(context.Background(), "some request", "tenant-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !result.Hit || !result.Exact {
		t.Error("Expected exact hit despite embedding failure")
	}

	// Fuzzy lookup degrades to a miss, not an error.
	result, err = service.Lookup(context.Background(), "different request", "tenant-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if result.Hit {
		t.Error("Expected miss when embedding fails")
	}
}

func TestStoreUpsertIncrementsUsage(t *testing.T) {
	store := newMemStore()
	service := NewService(store)

	for i := 0; i < 3; i++ {
		if err := service.Store(context.Background(), "repeated request", `{"v":1}`, "tenant-1", ""); err != nil {
			t.Fatalf("Store %d failed: %v", i, err)
		}
	}

	entry := store.entries["tenant-1:"+HashContent("repeated request")]
	if entry == nil {
		t.Fatal("Expected entry to exist")
	}
	if entry.UsageCount != 3 {
		t.Errorf("Expected usage count 3, got %d", entry.UsageCount)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero magnitude", []float64{0, 0}, []float64{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
