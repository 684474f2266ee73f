// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package router

import (
	"sync"
	"time"
)

// TraceStep is one recorded step on the way to a routing decision.
type TraceStep struct {
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DecisionTrace is the ordered audit log of one plan call. Steps are
// append-only; once sealed the trace rejects further writes.
type DecisionTrace struct {
	mu     sync.Mutex
	steps  []TraceStep
	sealed bool
}

// NewDecisionTrace creates an empty trace
func NewDecisionTrace() *DecisionTrace {
	return &DecisionTrace{}
}

// Append records a step. Appends after Seal are dropped.
func (t *DecisionTrace) Append(stage, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.steps = append(t.steps, TraceStep{
		Stage:     stage,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// Seal freezes the trace.
func (t *DecisionTrace) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Steps returns a copy of the recorded steps.
func (t *DecisionTrace) Steps() []TraceStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceStep, len(t.steps))
	copy(out, t.steps)
	return out
}
