// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"math"
	"testing"
)

func TestIsValidMode(t *testing.T) {
	for _, mode := range ValidModes {
		if !IsValidMode(string(mode)) {
			t.Errorf("Expected %s to be valid", mode)
		}
	}
	if IsValidMode("cheapest") {
		t.Error("Expected 'cheapest' to be invalid")
	}
	if IsValidMode("") {
		t.Error("Expected empty mode to be invalid")
	}
}

func TestParseWeights(t *testing.T) {
	t.Run("normalizes to 1.0", func(t *testing.T) {
		weights, err := ParseWeights("cost:4,speed:3,quality:3")
		if err != nil {
			t.Fatalf("ParseWeights failed: %v", err)
		}
		if math.Abs(weights.Cost-0.4) > 1e-9 || math.Abs(weights.Speed-0.3) > 1e-9 || math.Abs(weights.Quality-0.3) > 1e-9 {
			t.Errorf("Unexpected weights: %+v", weights)
		}
	})

	t.Run("missing criterion gets zero", func(t *testing.T) {
		weights, err := ParseWeights("cost:1")
		if err != nil {
			t.Fatalf("ParseWeights failed: %v", err)
		}
		if weights.Cost != 1 || weights.Speed != 0 || weights.Quality != 0 {
			t.Errorf("Unexpected weights: %+v", weights)
		}
	})

	tests := []struct {
		name  string
		input string
	}{
		{"unknown criterion", "latency:1"},
		{"bad format", "cost=1"},
		{"negative weight", "cost:-1"},
		{"non-numeric", "cost:abc"},
		{"all zero", "cost:0,speed:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWeights(tt.input); err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
		})
	}
}

func TestLoadWeightsFromEnv(t *testing.T) {
	t.Run("unset uses equal weights", func(t *testing.T) {
		t.Setenv("ROUTING_WEIGHTS", "")
		weights := LoadWeightsFromEnv()
		if math.Abs(weights.Cost-weights.Speed) > 1e-9 || math.Abs(weights.Speed-weights.Quality) > 1e-9 {
			t.Errorf("Expected equal weights, got %+v", weights)
		}
	})

	t.Run("invalid degrades to equal weights", func(t *testing.T) {
		t.Setenv("ROUTING_WEIGHTS", "garbage")
		weights := LoadWeightsFromEnv()
		if math.Abs(weights.Cost-1.0/3.0) > 1e-9 {
			t.Errorf("Expected equal weights on parse failure, got %+v", weights)
		}
	})

	t.Run("valid env weights", func(t *testing.T) {
		t.Setenv("ROUTING_WEIGHTS", "cost:0.5,speed:0.25,quality:0.25")
		weights := LoadWeightsFromEnv()
		if math.Abs(weights.Cost-0.5) > 1e-9 {
			t.Errorf("Expected cost weight 0.5, got %+v", weights)
		}
	})
}
