// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenState is the lifecycle position of a reset token.
type TokenState string

// Reset token states. Active is the only non-terminal state.
const (
	TokenActive     TokenState = "active"
	TokenConsumed   TokenState = "consumed"
	TokenExpired    TokenState = "expired"
	TokenSuperseded TokenState = "superseded"
)

// ResetToken is a pending or historical password-reset authorization.
// The plaintext token is never stored; TokenHash is its SHA-256 digest.
type ResetToken struct {
	ID            ulid.ULID
	UserID        ulid.ULID
	TokenHash     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
	InvalidatedAt *time.Time
}

// NewResetToken creates a validated, active ResetToken.
func NewResetToken(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*ResetToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("RESET_INVALID_EXPIRY").
			With("created_at", createdAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation")
	}
	return &ResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// StateAt returns the token's state at the given instant. Consumption and
// supersession take precedence over expiry.
func (r *ResetToken) StateAt(now time.Time) TokenState {
	switch {
	case r.ConsumedAt != nil:
		return TokenConsumed
	case r.InvalidatedAt != nil:
		return TokenSuperseded
	case !now.Before(r.ExpiresAt):
		return TokenExpired
	default:
		return TokenActive
	}
}

// Err maps a non-active state to its store error; nil for TokenActive.
func (s TokenState) Err() error {
	switch s {
	case TokenConsumed:
		return ErrTokenConsumed
	case TokenSuperseded:
		return ErrTokenSuperseded
	case TokenExpired:
		return ErrTokenExpired
	default:
		return nil
	}
}
