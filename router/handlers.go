// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"payrail/platform/policy"
)

// routerMetrics tracks coarse request counters surfaced on /metrics.
type routerMetrics struct {
	plans     int64
	denials   int64
	cacheHits int64
	failures  int64
	startedAt time.Time
}

var metrics = &routerMetrics{startedAt: time.Now()}

func planHandler(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req PlanAPIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.TenantID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
			return
		}

		resp, err := service.Plan(r.Context(), &req)
		promPlanDuration.Observe(float64(time.Since(start).Milliseconds()))
		if err != nil {
			atomic.AddInt64(&metrics.failures, 1)
			promPlansTotal.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		atomic.AddInt64(&metrics.plans, 1)
		switch {
		case !resp.Allow:
			atomic.AddInt64(&metrics.denials, 1)
			promPlansTotal.WithLabelValues("denied").Inc()
		case resp.CacheHit:
			atomic.AddInt64(&metrics.cacheHits, 1)
			promPlansTotal.WithLabelValues("cache_hit").Inc()
		default:
			promPlansTotal.WithLabelValues("routed").Inc()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type mandateVerifyRequest struct {
	MandateID string  `json:"mandate_id"`
	AmountUSD float64 `json:"amount_usd"`
	Category  string  `json:"category,omitempty"`
}

func mandateVerifyHandler(mandates *policy.MandateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mandateVerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MandateID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mandate_id is required"})
			return
		}

		verification, err := mandates.Verify(r.Context(), req.MandateID, req.AmountUSD, req.Category)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, verification)
	}
}

func mandateUsageHandler(mandates *policy.MandateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mandateVerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MandateID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mandate_id is required"})
			return
		}

		err := mandates.RecordUsage(r.Context(), req.MandateID, req.AmountUSD)
		switch {
		case errors.Is(err, policy.ErrMandateNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "mandate not found"})
		case errors.Is(err, policy.ErrBudgetExceeded):
			writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "mandate budget exceeded"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
		}
	}
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{
			"status":    status,
			"service":   "router",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"plans_total":    atomic.LoadInt64(&metrics.plans),
			"denials_total":  atomic.LoadInt64(&metrics.denials),
			"cache_hits":     atomic.LoadInt64(&metrics.cacheHits),
			"failures_total": atomic.LoadInt64(&metrics.failures),
			"uptime_seconds": int64(time.Since(metrics.startedAt).Seconds()),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
