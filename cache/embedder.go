// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"
)

// Embedder computes embedding vectors for cache content.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float64, error)
}

// HTTPEmbedder calls an external embedding service.
type HTTPEmbedder struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewHTTPEmbedder creates an embedder from explicit settings.
func NewHTTPEmbedder(endpoint, model, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NewHTTPEmbedderFromEnv creates an embedder from EMBEDDING_ENDPOINT,
// EMBEDDING_MODEL, and EMBEDDING_API_KEY. Returns nil when no endpoint is
// configured; a nil embedder degrades the cache to exact-match only.
func NewHTTPEmbedderFromEnv() *HTTPEmbedder {
	endpoint := os.Getenv("EMBEDDING_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return NewHTTPEmbedder(endpoint, os.Getenv("EMBEDDING_MODEL"), os.Getenv("EMBEDDING_API_KEY"))
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed computes an embedding for the given content.
func (e *HTTPEmbedder) Embed(ctx context.Context, content string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Input: content, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}

	return parsed.Embedding, nil
}

// CosineSimilarity returns the cosine similarity of two vectors, or 0 for
// mismatched or zero-magnitude vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
