// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/pkg/errutil"
)

func TestHasher_Hash(t *testing.T) {
	hasher, err := auth.NewHasher(fastHasherConfig())
	require.NoError(t, err)

	t.Run("produces argon2id PHC string", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("rejects password below minimum length", func(t *testing.T) {
		_, err := hasher.Hash("short")
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorContext(t, err, "min", 8)
	})
}

func TestHasher_Verify(t *testing.T) {
	hasher, err := auth.NewHasher(fastHasherConfig())
	require.NoError(t, err)

	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correct-horse", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password is a mismatch, not an error", func(t *testing.T) {
		ok, err := hasher.Verify("battery-staple", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("parameters come from the verifier", func(t *testing.T) {
		cfg := fastHasherConfig()
		cfg.Argon2Time = 2
		stronger, err := auth.NewHasher(cfg)
		require.NoError(t, err)

		// a hasher with different work factors still verifies old hashes
		ok, err := stronger.Verify("correct-horse", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bcrypt verifiers are accepted", func(t *testing.T) {
		cfg := fastHasherConfig()
		cfg.Algorithm = auth.AlgorithmBcrypt
		cfg.BcryptCost = 4
		bc, err := auth.NewHasher(cfg)
		require.NoError(t, err)

		legacy, err := bc.Hash("correct-horse")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(legacy, "$2a$"))

		ok, err := hasher.Verify("correct-horse", legacy)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("battery-staple", legacy)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	corrupt := []struct {
		name     string
		verifier string
	}{
		{"empty", ""},
		{"unknown algorithm", "$scrypt$ln=15,r=8,p=1$abc$def"},
		{"too few fields", "$argon2id$v=19$m=1024,t=1,p=1$salt"},
		{"bad version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"memory beyond limit", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"too many iterations", "$argon2id$v=19$m=1024,t=100000,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"threads overflow", "$argon2id$v=19$m=1024,t=1,p=300$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5a2V5a2V5a2V5"},
		{"bad key", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$!!!"},
		{"truncated bcrypt", "$2a$10$short"},
	}
	for _, tt := range corrupt {
		t.Run("corrupt verifier: "+tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("correct-horse", tt.verifier)
			require.ErrorIs(t, err, auth.ErrCorruptVerifier)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, auth.CodeCorruptVerifier)
		})
	}
}

func TestHasherConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.HasherConfig)
	}{
		{"unknown algorithm", func(c *auth.HasherConfig) { c.Algorithm = "md5" }},
		{"zero argon2 time", func(c *auth.HasherConfig) { c.Argon2Time = 0 }},
		{"zero argon2 memory", func(c *auth.HasherConfig) { c.Argon2MemoryKiB = 0 }},
		{"argon2 time beyond limit", func(c *auth.HasherConfig) { c.Argon2Time = 65 }},
		{"argon2 memory beyond limit", func(c *auth.HasherConfig) { c.Argon2MemoryKiB = 1<<22 + 1 }},
		{"short salt", func(c *auth.HasherConfig) { c.SaltLength = 4 }},
		{"bcrypt cost too low", func(c *auth.HasherConfig) {
			c.Algorithm = auth.AlgorithmBcrypt
			c.BcryptCost = 1
		}},
		{"zero minimum length", func(c *auth.HasherConfig) { c.MinLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := auth.DefaultHasherConfig()
			tt.mutate(&cfg)
			_, err := auth.NewHasher(cfg)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, auth.DefaultHasherConfig().Validate())
	})
}

func TestHasher_BcryptRejectsLongInput(t *testing.T) {
	cfg := fastHasherConfig()
	cfg.Algorithm = auth.AlgorithmBcrypt
	cfg.BcryptCost = 4
	hasher, err := auth.NewHasher(cfg)
	require.NoError(t, err)

	_, err = hasher.Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, auth.ErrInvalidInput)
}
