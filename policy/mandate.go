// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payrail/platform/shared/logger"
)

// Notifier dispatches budget lifecycle notifications. Calls are
// fire-and-forget: failures are logged, never propagated.
type Notifier interface {
	NotifyBudgetExhausted(ctx context.Context, tenantID, mandateID string, totalUSD float64)
}

// MandateService verifies and debits agent spending mandates.
type MandateService struct {
	repo     Repository
	notifier Notifier
	log      *logger.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewMandateService creates a mandate service. The notifier may be nil.
func NewMandateService(repo Repository, notifier Notifier) *MandateService {
	return &MandateService{
		repo:     repo,
		notifier: notifier,
		log:      logger.New("mandate-service"),
		now:      time.Now,
	}
}

// Verify checks whether a mandate permits a spend of amountUSD in the given
// category. Verification failures are structured results, not errors.
func (s *MandateService) Verify(ctx context.Context, mandateID string, amountUSD float64, category string) (*MandateVerification, error) {
	mandate, err := s.repo.GetMandate(ctx, mandateID)
	if errors.Is(err, ErrMandateNotFound) {
		return &MandateVerification{Valid: false, Error: "mandate not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mandate %s: %w", mandateID, err)
	}

	if mandate.Status != StatusActive {
		return &MandateVerification{Valid: false, Error: fmt.Sprintf("mandate is %s", mandate.Status)}, nil
	}
	if mandate.ExpiresAt != nil && !s.now().Before(*mandate.ExpiresAt) {
		return &MandateVerification{Valid: false, Error: "mandate has expired"}, nil
	}
	if !mandate.AllowsCategory(category) {
		return &MandateVerification{Valid: false, Error: fmt.Sprintf("category %q is not permitted", category)}, nil
	}
	if amountUSD > mandate.RemainingUSD() {
		return &MandateVerification{
			Valid: false,
			Error: fmt.Sprintf("amount %.6f exceeds remaining budget %.6f", amountUSD, mandate.RemainingUSD()),
		}, nil
	}

	return &MandateVerification{Valid: true}, nil
}

// RecordUsage debits a mandate budget. When the debit reaches or meets the
// ceiling exactly, the mandate flips to exhausted and the notifier is
// invoked asynchronously.
func (s *MandateService) RecordUsage(ctx context.Context, mandateID string, amountUSD float64) error {
	result, err := s.repo.RecordMandateUsage(ctx, mandateID, amountUSD)
	if err != nil {
		return err
	}

	if result.NewlyExhausted {
		mandate, merr := s.repo.GetMandate(ctx, mandateID)
		tenantID := ""
		if merr == nil {
			tenantID = mandate.TenantID
		}
		s.log.Info(tenantID, "", "Mandate budget exhausted", map[string]interface{}{
			"mandate_id": mandateID,
			"total_usd":  result.TotalUSD,
		})
		if s.notifier != nil {
			// Detached context so request cancellation cannot drop the notification.
			go s.notifier.NotifyBudgetExhausted(context.Background(), tenantID, mandateID, result.TotalUSD)
		}
	}

	return nil
}
