// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Internal taxonomy. These never reach callers of ResetFlowController unchanged.
var (
	// ErrInvalidInput is returned for empty or too-short plaintexts and for
	// tokens whose shape could not have come from the generator.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorruptVerifier is returned when a stored verifier cannot be parsed.
	ErrCorruptVerifier = errors.New("corrupt verifier")

	// ErrNotFound is returned when a requested user or token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTokenExpired is returned for a token whose expiry has passed.
	ErrTokenExpired = errors.New("reset token expired")

	// ErrTokenConsumed is returned for a token that was already used.
	ErrTokenConsumed = errors.New("reset token already consumed")

	// ErrTokenSuperseded is returned for a token invalidated by a newer issuance.
	ErrTokenSuperseded = errors.New("reset token superseded")

	// ErrTokenCollision is returned when a token digest already exists.
	ErrTokenCollision = errors.New("reset token collision")

	// ErrStoreUnavailable marks a transaction or connection failure. It is
	// retryable and the failed operation was not partially applied.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Caller-visible outcomes of the reset flow.
var (
	// ErrInvalidOrExpiredToken covers unknown, expired, consumed and superseded
	// tokens. The cases are deliberately indistinguishable.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")

	// ErrPolicyViolation is returned when a new password does not meet policy.
	ErrPolicyViolation = errors.New("password does not meet policy")
)

// Error codes attached with oops.Code.
const (
	CodeInvalidInput            = "AUTH_INVALID_INPUT"
	CodeCorruptVerifier         = "AUTH_CORRUPT_VERIFIER"
	CodeHashFailed              = "AUTH_HASH_FAILED"
	CodeTokenGenerateFailed     = "RESET_TOKEN_GENERATE_FAILED"
	CodeInvalidOrExpiredToken   = "RESET_TOKEN_INVALID"
	CodePolicyViolation         = "RESET_POLICY_VIOLATION"
	CodeStoreUnavailable        = "STORE_UNAVAILABLE"
	CodeNotificationFailed      = "RESET_NOTIFICATION_FAILED"
	CodeNotificationUnreachable = "RESET_NOTIFICATION_NO_ADDRESS"
)

// isTokenRejection reports whether err is one of the store outcomes that
// collapse into ErrInvalidOrExpiredToken.
func isTokenRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenConsumed) ||
		errors.Is(err, ErrTokenSuperseded)
}
