// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"context"

	"payrail/platform/shared/logger"
)

// BudgetNotifier dispatches budget-exhaustion notifications. It logs the
// exhaustion and forwards it to the analytics sink; delivery is best-effort.
type BudgetNotifier struct {
	analytics AnalyticsSink
	log       *logger.Logger
}

// NewBudgetNotifier creates a notifier backed by the analytics sink
func NewBudgetNotifier(analytics AnalyticsSink) *BudgetNotifier {
	return &BudgetNotifier{
		analytics: analytics,
		log:       logger.New("budget-notifier"),
	}
}

// NotifyBudgetExhausted records that a mandate has spent its full budget
func (n *BudgetNotifier) NotifyBudgetExhausted(ctx context.Context, tenantID, mandateID string, totalUSD float64) {
	n.log.Warn(tenantID, "", "Mandate budget exhausted", map[string]interface{}{
		"mandate_id": mandateID,
		"total_usd":  totalUSD,
	})

	if n.analytics == nil {
		return
	}
	event := &AnalyticsEvent{
		Type:     EventBudgetExhausted,
		TenantID: tenantID,
		Payload: map[string]interface{}{
			"mandate_id": mandateID,
			"total_usd":  totalUSD,
		},
	}
	if err := n.analytics.Emit(ctx, event); err != nil {
		n.log.Warn(tenantID, "", "Analytics emit failed", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}
