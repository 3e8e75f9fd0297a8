// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/pkg/errutil"
)

func TestNewResetToken(t *testing.T) {
	now := time.Now()
	userID := ulid.Make()

	t.Run("creates active token", func(t *testing.T) {
		rt, err := auth.NewResetToken(userID, "hash", now, now.Add(time.Hour))
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, rt.ID)
		assert.Equal(t, userID, rt.UserID)
		assert.Nil(t, rt.ConsumedAt)
		assert.Nil(t, rt.InvalidatedAt)
		assert.Equal(t, auth.TokenActive, rt.StateAt(now))
	})

	t.Run("rejects zero user", func(t *testing.T) {
		_, err := auth.NewResetToken(ulid.ULID{}, "hash", now, now.Add(time.Hour))
		errutil.AssertErrorCode(t, err, "RESET_INVALID_USER")
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := auth.NewResetToken(userID, "", now, now.Add(time.Hour))
		errutil.AssertErrorCode(t, err, "RESET_INVALID_HASH")
	})

	t.Run("rejects expiry not after creation", func(t *testing.T) {
		_, err := auth.NewResetToken(userID, "hash", now, now)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_EXPIRY")
	})
}

func TestResetToken_StateAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(30 * time.Minute)
	at := created.Add(time.Minute)

	tests := []struct {
		name  string
		token auth.ResetToken
		now   time.Time
		want  auth.TokenState
		err   error
	}{
		{"active before expiry", auth.ResetToken{ExpiresAt: expires}, expires.Add(-time.Nanosecond), auth.TokenActive, nil},
		{"expired at expiry instant", auth.ResetToken{ExpiresAt: expires}, expires, auth.TokenExpired, auth.ErrTokenExpired},
		{"consumed", auth.ResetToken{ExpiresAt: expires, ConsumedAt: &at}, at, auth.TokenConsumed, auth.ErrTokenConsumed},
		{"superseded", auth.ResetToken{ExpiresAt: expires, InvalidatedAt: &at}, at, auth.TokenSuperseded, auth.ErrTokenSuperseded},
		{"consumed wins over expiry", auth.ResetToken{ExpiresAt: expires, ConsumedAt: &at}, expires.Add(time.Hour), auth.TokenConsumed, auth.ErrTokenConsumed},
		{"superseded wins over expiry", auth.ResetToken{ExpiresAt: expires, InvalidatedAt: &at}, expires.Add(time.Hour), auth.TokenSuperseded, auth.ErrTokenSuperseded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.token.StateAt(tt.now)
			assert.Equal(t, tt.want, got)
			if tt.err == nil {
				assert.NoError(t, got.Err())
			} else {
				assert.ErrorIs(t, got.Err(), tt.err)
			}
		})
	}
}

func TestUser_HasContactAddress(t *testing.T) {
	empty := ""
	addr := "alice@example.com"
	assert.False(t, (&auth.User{}).HasContactAddress())
	assert.False(t, (&auth.User{ContactAddress: &empty}).HasContactAddress())
	assert.True(t, (&auth.User{ContactAddress: &addr}).HasContactAddress())
}
