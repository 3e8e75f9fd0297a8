// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialStore is the only path to durable user and reset-token records.
// Every method is a single transaction against the underlying store; on
// failure nothing is applied and the error wraps ErrStoreUnavailable.
type CredentialStore interface {
	// GetUserByUsername retrieves a user by login handle (case-insensitive).
	// Returns ErrNotFound if no such user exists.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserByID retrieves a user by identifier.
	// Returns ErrNotFound if no such user exists.
	GetUserByID(ctx context.Context, id ulid.ULID) (*User, error)

	// IssueToken supersedes every active token of the user and stores a new
	// one, serialized on the user's row so concurrent issuance leaves exactly
	// one active token. Returns ErrNotFound for an unknown user and
	// ErrTokenCollision if the digest already exists.
	IssueToken(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (*ResetToken, error)

	// FindActiveToken looks a token up by digest. Returns ErrNotFound,
	// ErrTokenExpired, ErrTokenConsumed or ErrTokenSuperseded when the token
	// is not active. Expiry is evaluated lazily at call time.
	FindActiveToken(ctx context.Context, tokenHash string) (*ResetToken, error)

	// ConsumeTokenAndRotateCredential re-validates the token, marks it consumed
	// and replaces the owner's verifier in one transaction. Of any number of
	// concurrent calls for the same digest, at most one succeeds; the rest see
	// ErrTokenConsumed. Returns the consumed token.
	ConsumeTokenAndRotateCredential(ctx context.Context, tokenHash, newVerifier string) (*ResetToken, error)

	// PurgeExpired deletes token rows that became terminal before olderThan and
	// returns how many were removed. Correctness never depends on it.
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
