// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides the PostgreSQL CredentialStore.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/credreset/internal/auth"
)

// DefaultTxTimeout bounds a single store operation.
const DefaultTxTimeout = 5 * time.Second

// constraint names from the reset_tokens migration
const (
	tokenHashIndex    = "idx_reset_tokens_token_hash"
	openPerUserIndex  = "idx_reset_tokens_one_open_per_user"
	userColumns       = `id, username, verifier, contact_address, created_at, updated_at`
	resetTokenColumns = `id, user_id, token_hash, created_at, expires_at, consumed_at, invalidated_at`
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialStore implements auth.CredentialStore on PostgreSQL.
//
// Operations that touch both tables lock the user row before any token row,
// so IssueToken and ConsumeTokenAndRotateCredential cannot deadlock.
type CredentialStore struct {
	pool      Pool
	now       func() time.Time
	txTimeout time.Duration
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithClock overrides the clock used for timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialStore) { s.now = now }
}

// WithTxTimeout bounds each operation. Non-positive values are ignored.
func WithTxTimeout(d time.Duration) Option {
	return func(s *CredentialStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(pool Pool, opts ...Option) *CredentialStore {
	s := &CredentialStore{pool: pool, now: time.Now, txTimeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUserByUsername retrieves a user by case-insensitive username.
func (s *CredentialStore) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get user by username", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *CredentialStore) GetUserByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get user by id", err)
	}
	return user, nil
}

// IssueToken supersedes the user's open tokens and stores a new one.
func (s *CredentialStore) IssueToken(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (*auth.ResetToken, error) {
	now := s.now()
	reset, err := auth.NewResetToken(userID, tokenHash, now, expiresAt)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, "issue token", func(ctx context.Context, tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reset_tokens SET invalidated_at = $2
			WHERE user_id = $1 AND consumed_at IS NULL AND invalidated_at IS NULL
		`, userID.String(), now); err != nil {
			return unavailable("supersede open tokens", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO reset_tokens (id, user_id, token_hash, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`, reset.ID.String(), userID.String(), tokenHash, reset.CreatedAt, reset.ExpiresAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == tokenHashIndex {
				return oops.Code("RESET_TOKEN_COLLISION").With("user_id", userID.String()).Wrap(auth.ErrTokenCollision)
			}
			return unavailable("insert reset token", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// FindActiveToken returns the token with the given digest if it is active now.
func (s *CredentialStore) FindActiveToken(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+resetTokenColumns+` FROM reset_tokens WHERE token_hash = $1`, tokenHash)
	reset, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("find reset token", err)
	}
	if err := reset.StateAt(s.now()).Err(); err != nil {
		return nil, oops.Code("RESET_TOKEN_INACTIVE").With("reset_id", reset.ID.String()).Wrap(err)
	}
	return reset, nil
}

// ConsumeTokenAndRotateCredential marks the token consumed and replaces the
// owner's verifier. The token row is re-read under lock, so concurrent
// callers for one digest serialize and all but the first see ErrTokenConsumed.
func (s *CredentialStore) ConsumeTokenAndRotateCredential(ctx context.Context, tokenHash, newVerifier string) (*auth.ResetToken, error) {
	var consumed *auth.ResetToken
	err := s.inTx(ctx, "consume token", func(ctx context.Context, tx pgx.Tx) error {
		// Unlocked read to find the owner, so the user row can be locked first.
		var userIDStr string
		err := tx.QueryRow(ctx, `SELECT user_id FROM reset_tokens WHERE token_hash = $1`, tokenHash).Scan(&userIDStr)
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return unavailable("find token owner", err)
		}
		userID, err := ulid.Parse(userIDStr)
		if err != nil {
			return unavailable("parse token owner", err)
		}

		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		reset, err := scanResetToken(tx.QueryRow(ctx,
			`SELECT `+resetTokenColumns+` FROM reset_tokens WHERE token_hash = $1 FOR UPDATE`, tokenHash))
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return unavailable("lock reset token", err)
		}

		now := s.now()
		if err := reset.StateAt(now).Err(); err != nil {
			return oops.Code("RESET_TOKEN_INACTIVE").With("reset_id", reset.ID.String()).Wrap(err)
		}

		if _, err := tx.Exec(ctx, `UPDATE reset_tokens SET consumed_at = $2 WHERE id = $1`, reset.ID.String(), now); err != nil {
			return unavailable("mark token consumed", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET verifier = $2, updated_at = $3 WHERE id = $1`,
			reset.UserID.String(), newVerifier, now)
		if err != nil {
			return unavailable("rotate verifier", err)
		}
		if tag.RowsAffected() != 1 {
			return oops.Code("USER_NOT_FOUND").With("user_id", reset.UserID.String()).Wrap(auth.ErrNotFound)
		}

		reset.ConsumedAt = &now
		consumed = reset
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// PurgeExpired deletes tokens that became terminal before olderThan.
func (s *CredentialStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM reset_tokens
		WHERE COALESCE(consumed_at, invalidated_at, expires_at) < $1
	`, olderThan)
	if err != nil {
		return 0, unavailable("purge reset tokens", err)
	}
	return tag.RowsAffected(), nil
}

// inTx runs fn in a transaction bounded by the store's timeout. fn's error is
// returned as-is; begin and commit failures are reported as unavailable.
func (s *CredentialStore) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(op+": begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(op+": commit", err)
	}
	return nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID ulid.ULID) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID.String()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return unavailable("lock user", err)
	}
	return nil
}

// unavailable wraps a database failure so it matches auth.ErrStoreUnavailable
// while keeping the driver error in the chain.
func unavailable(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == openPerUserIndex {
		operation += ": open token constraint"
	}
	return oops.Code(auth.CodeStoreUnavailable).
		With("operation", operation).
		Wrap(errors.Join(auth.ErrStoreUnavailable, err))
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr   string
		user    auth.User
		contact *string
	)
	if err := row.Scan(&idStr, &user.Username, &user.Verifier, &contact, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers classify
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.ContactAddress = contact
	return &user, nil
}

// scanResetToken scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr, userIDStr string
		reset            auth.ResetToken
	)
	err := row.Scan(&idStr, &userIDStr, &reset.TokenHash, &reset.CreatedAt, &reset.ExpiresAt,
		&reset.ConsumedAt, &reset.InvalidatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers classify
	}
	if reset.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if reset.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	return &reset, nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*CredentialStore)(nil)
