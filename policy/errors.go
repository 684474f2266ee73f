// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package policy

import "errors"

var (
	// ErrPolicyNotFound indicates no policy exists with the given ID.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrSessionNotFound indicates no session exists with the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMandateNotFound indicates no mandate exists with the given ID.
	ErrMandateNotFound = errors.New("mandate not found")

	// ErrBudgetExceeded indicates a usage record would push spend past the
	// budget ceiling. The stored spend is unchanged.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidToken indicates the session token could not be parsed or
	// failed signature verification.
	ErrInvalidToken = errors.New("invalid session token")
)
