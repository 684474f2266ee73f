// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu     sync.Mutex
	calls  int
	lastID string
	done   chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 1)}
}

func (n *recordingNotifier) NotifyBudgetExhausted(ctx context.Context, tenantID, mandateID string, totalUSD float64) {
	n.mu.Lock()
	n.calls++
	n.lastID = mandateID
	n.mu.Unlock()
	n.done <- struct{}{}
}

func activeMandate(id string) *Mandate {
	return &Mandate{
		ID: id, TenantID: "tenant-1", Status: StatusActive,
		TotalBudgetUSD: 50, SpentUSD: 40,
		Categories: []string{"inference", "search"},
	}
}

func TestMandateVerify(t *testing.T) {
	repo := newMemRepository()
	repo.mandates["mnd-1"] = activeMandate("mnd-1")

	expired := activeMandate("mnd-expired")
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past
	repo.mandates["mnd-expired"] = expired

	revoked := activeMandate("mnd-revoked")
	revoked.Status = StatusRevoked
	repo.mandates["mnd-revoked"] = revoked

	service := NewMandateService(repo, nil)

	tests := []struct {
		name      string
		mandateID string
		amount    float64
		category  string
		valid     bool
	}{
		{"within budget and category", "mnd-1", 5, "inference", true},
		{"exact remaining budget", "mnd-1", 10, "search", true},
		{"over budget", "mnd-1", 11, "inference", false},
		{"category not permitted", "mnd-1", 5, "gambling", false},
		{"empty category permitted by list", "mnd-1", 5, "", false},
		{"expired mandate", "mnd-expired", 1, "inference", false},
		{"revoked mandate", "mnd-revoked", 1, "inference", false},
		{"missing mandate", "mnd-missing", 1, "inference", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.Verify(context.Background(), tt.mandateID, tt.amount, tt.category)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if result.Valid != tt.valid {
				t.Errorf("Expected valid=%v, got %v (%s)", tt.valid, result.Valid, result.Error)
			}
			if !result.Valid && result.Error == "" {
				t.Error("Expected an error message on invalid verification")
			}
		})
	}

	t.Run("no category list permits any category", func(t *testing.T) {
		open := activeMandate("mnd-open")
		open.Categories = nil
		repo.mandates["mnd-open"] = open

		result, err := service.Verify(context.Background(), "mnd-open", 1, "anything")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if !result.Valid {
			t.Errorf("Expected valid, got %s", result.Error)
		}
	})
}

func TestRecordUsageExhaustionNotifies(t *testing.T) {
	repo := newMemRepository()
	repo.mandates["mnd-1"] = activeMandate("mnd-1")
	notifier := newRecordingNotifier()
	service := NewMandateService(repo, notifier)

	// Debit below the ceiling: no notification.
	if err := service.RecordUsage(context.Background(), "mnd-1", 5); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	// Debit to exactly the ceiling: status flips and notification fires.
	if err := service.RecordUsage(context.Background(), "mnd-1", 5); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	select {
	case <-notifier.done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for exhaustion notification")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.calls != 1 {
		t.Errorf("Expected 1 notification, got %d", notifier.calls)
	}
	if notifier.lastID != "mnd-1" {
		t.Errorf("Expected notification for mnd-1, got %s", notifier.lastID)
	}

	mandate, _ := repo.GetMandate(context.Background(), "mnd-1")
	if mandate.Status != StatusExhausted {
		t.Errorf("Expected exhausted, got %s", mandate.Status)
	}
}
