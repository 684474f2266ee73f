// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"testing"
	"time"

	"payrail/platform/facilitator"
	"payrail/platform/shared/types"
)

func healthySnapshot(p95 int64) facilitator.HealthSnapshot {
	return facilitator.HealthSnapshot{
		Status:       facilitator.HealthStatusHealthy,
		P95LatencyMs: p95,
		SuccessRate:  1.0,
		LastChecked:  time.Now().UTC(),
	}
}

func candidate(t *testing.T, id string, mutate func(*facilitator.Config)) *facilitator.Candidate {
	t.Helper()
	config := facilitator.Config{
		ID:       id,
		Endpoint: "https://" + id + ".example.com",
		Networks: []types.Network{types.NetworkBase},
		Enabled:  true,
	}
	if mutate != nil {
		mutate(&config)
	}
	adapter, err := facilitator.NewHTTPAdapter(config)
	if err != nil {
		t.Fatalf("Failed to build adapter %s: %v", id, err)
	}
	reputation := config.Reputation
	if reputation == 0 {
		reputation = 100
	}
	return &facilitator.Candidate{
		Adapter:    adapter,
		Health:     healthySnapshot(300),
		BaseFeeUSD: config.BaseFeeUSD,
		Reputation: reputation,
		Caps:       config.Capabilities,
	}
}

func basePayment() *types.PaymentContext {
	return &types.PaymentContext{
		Network: types.NetworkBase,
		Scheme:  types.SchemeExact,
		Amount:  "1.00",
	}
}

func TestSpeedModeOrdering(t *testing.T) {
	fast := candidate(t, "fac_fast", nil)
	fast.Health = healthySnapshot(100)
	slow := candidate(t, "fac_slow", nil)
	slow.Health = healthySnapshot(2500)

	fastScore, _ := scoreCandidate(fast, ModeSpeed, DefaultWeights(), basePayment(), "")
	slowScore, _ := scoreCandidate(slow, ModeSpeed, DefaultWeights(), basePayment(), "")

	if fastScore <= slowScore {
		t.Errorf("Expected lower latency to score strictly higher in speed mode: fast=%v slow=%v", fastScore, slowScore)
	}
}

func TestSpeedLatencyBands(t *testing.T) {
	tests := []struct {
		name string
		p95  int64
		want float64
	}{
		{"over 2000ms", 2500, -80},
		{"over 1000ms", 1500, -40},
		{"over 500ms", 600, -10},
		{"under 200ms", 100, 20},
		{"mid band", 300, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := speedAdjustment(tt.p95); got != tt.want {
				t.Errorf("speedAdjustment(%d) = %v, want %v", tt.p95, got, tt.want)
			}
		})
	}
}

func TestCostModeIgnoresLatency(t *testing.T) {
	// Two healthy adapters on the same network/asset. The expensive one is
	// much faster; in cost mode its latency must not be penalized.
	cheap := candidate(t, "fac_cheap", func(c *facilitator.Config) { c.BaseFeeUSD = 0.001 })
	cheap.Health = healthySnapshot(1000)
	expensive := candidate(t, "fac_expensive", func(c *facilitator.Config) { c.BaseFeeUSD = 0.1 })
	expensive.Health = healthySnapshot(100)

	cheapScore, _ := scoreCandidate(cheap, ModeCost, DefaultWeights(), basePayment(), "")
	expensiveScore, _ := scoreCandidate(expensive, ModeCost, DefaultWeights(), basePayment(), "")

	if cheapScore <= expensiveScore {
		t.Errorf("Expected lower fee to win in cost mode: cheap=%v expensive=%v", cheapScore, expensiveScore)
	}

	// The expensive adapter's score difference comes from fees alone, not
	// its latency band.
	slowExpensive := candidate(t, "fac_expensive2", func(c *facilitator.Config) { c.BaseFeeUSD = 0.1 })
	slowExpensive.Health = healthySnapshot(2500)
	slowScore, _ := scoreCandidate(slowExpensive, ModeCost, DefaultWeights(), basePayment(), "")
	if slowScore != expensiveScore {
		t.Errorf("Expected latency to be irrelevant in cost mode: %v vs %v", slowScore, expensiveScore)
	}
}

func TestQualityMode(t *testing.T) {
	reputable := candidate(t, "fac_rep", func(c *facilitator.Config) { c.Reputation = 150 })
	plain := candidate(t, "fac_plain", nil)

	repScore, _ := scoreCandidate(reputable, ModeQuality, DefaultWeights(), basePayment(), "")
	plainScore, _ := scoreCandidate(plain, ModeQuality, DefaultWeights(), basePayment(), "")
	if repScore <= plainScore {
		t.Errorf("Expected higher reputation to score higher: %v vs %v", repScore, plainScore)
	}

	t.Run("low success rate penalized", func(t *testing.T) {
		flaky := candidate(t, "fac_flaky", nil)
		flaky.Health = healthySnapshot(300)
		flaky.Health.SuccessRate = 0.95

		flakyScore, _ := scoreCandidate(flaky, ModeQuality, DefaultWeights(), basePayment(), "")
		if flakyScore >= plainScore {
			t.Errorf("Expected sub-0.99 success rate to be penalized: %v vs %v", flakyScore, plainScore)
		}
	})
}

func TestCapabilityBonus(t *testing.T) {
	skilled := candidate(t, "fac_skilled", func(c *facilitator.Config) {
		c.Capabilities = facilitator.Capabilities{"translation": 0.9}
	})
	unskilled := candidate(t, "fac_unskilled", nil)

	skilledScore, _ := scoreCandidate(skilled, ModeBalanced, DefaultWeights(), basePayment(), "translation")
	unskilledScore, _ := scoreCandidate(unskilled, ModeBalanced, DefaultWeights(), basePayment(), "translation")

	if skilledScore <= unskilledScore {
		t.Errorf("Expected declared capability to score higher: %v vs %v", skilledScore, unskilledScore)
	}
	if diff := skilledScore - unskilledScore; diff != 90 {
		t.Errorf("Expected capability bonus of 90 points, got %v", diff)
	}
}

func TestHealthPenalties(t *testing.T) {
	down := candidate(t, "fac_down", nil)
	down.Health.Status = facilitator.HealthStatusDown

	score, reason := scoreCandidate(down, ModeBalanced, DefaultWeights(), basePayment(), "")
	if score != 0 || reason == "" {
		t.Errorf("Expected down adapter excluded with reason, got score=%v reason=%q", score, reason)
	}

	degraded := candidate(t, "fac_degraded", nil)
	degraded.Health.Status = facilitator.HealthStatusDegraded
	healthy := candidate(t, "fac_healthy", nil)

	degradedScore, _ := scoreCandidate(degraded, ModeBalanced, DefaultWeights(), basePayment(), "")
	healthyScore, _ := scoreCandidate(healthy, ModeBalanced, DefaultWeights(), basePayment(), "")
	if healthyScore-degradedScore != 50 {
		t.Errorf("Expected degraded penalty of 50, got %v", healthyScore-degradedScore)
	}

	unknown := candidate(t, "fac_unknown", nil)
	unknown.Health = facilitator.HealthSnapshot{Status: facilitator.HealthStatusUnknown}

	unknownScore, _ := scoreCandidate(unknown, ModeBalanced, DefaultWeights(), basePayment(), "")
	if healthyScore-unknownScore != 10 {
		t.Errorf("Expected unknown penalty of 10, got %v", healthyScore-unknownScore)
	}
}

func TestReliabilityPenalty(t *testing.T) {
	flaky := candidate(t, "fac_flaky", nil)
	flaky.Health.SuccessRate = 0.9

	solid := candidate(t, "fac_solid", nil)

	flakyScore, _ := scoreCandidate(flaky, ModeBalanced, DefaultWeights(), basePayment(), "")
	solidScore, _ := scoreCandidate(solid, ModeBalanced, DefaultWeights(), basePayment(), "")

	if diff := solidScore - flakyScore; diff < 19.9 || diff > 20.1 {
		t.Errorf("Expected reliability penalty of (1-0.9)*200 = 20, got %v", diff)
	}
}

func TestSettlementContractPreference(t *testing.T) {
	contract := candidate(t, "fac_contract", func(c *facilitator.Config) {
		c.Payment = &facilitator.PaymentConfig{
			TreasuryAddress: "0x1111111111111111111111111111111111111111",
			Mode:            facilitator.SettlementModeContract,
		}
	})
	transfer := candidate(t, "fac_transfer", func(c *facilitator.Config) {
		c.Payment = &facilitator.PaymentConfig{
			TreasuryAddress: "0x2222222222222222222222222222222222222222",
			Mode:            facilitator.SettlementModeTransfer,
		}
	})

	contractScore, _ := scoreCandidate(contract, ModeBalanced, DefaultWeights(), basePayment(), "")
	transferScore, _ := scoreCandidate(transfer, ModeBalanced, DefaultWeights(), basePayment(), "")

	if contractScore-transferScore != 200 {
		t.Errorf("Expected settlement-contract bonus of 200, got %v", contractScore-transferScore)
	}
}

func TestCrossChainAdjustment(t *testing.T) {
	payment := basePayment()
	payment.SourceNetwork = types.NetworkPolygon

	bridge := candidate(t, "fac_bridge", func(c *facilitator.Config) {
		c.Bridge = map[types.Network][]types.Network{
			types.NetworkPolygon: {types.NetworkBase},
		}
	})
	direct := candidate(t, "fac_direct", nil)

	bridgeScore, _ := scoreCandidate(bridge, ModeBalanced, DefaultWeights(), payment, "")
	directScore, _ := scoreCandidate(direct, ModeBalanced, DefaultWeights(), payment, "")

	if bridgeScore <= directScore {
		t.Errorf("Expected bridge-capable adapter to win cross-chain: %v vs %v", bridgeScore, directScore)
	}

	// Floor at zero: the non-bridge penalty must not produce a negative score.
	if directScore < 0 {
		t.Errorf("Expected score floor at 0, got %v", directScore)
	}
}
