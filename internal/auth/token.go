// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"time"

	"github.com/samber/oops"
)

// Reset token defaults.
const (
	DefaultTokenBytes = 32               // 32 bytes = 43 base64url chars
	DefaultTokenTTL   = 30 * time.Minute // short-lived by policy
	MinTokenBytes     = 16               // 128 bits of entropy
)

// TokenConfig controls reset token generation.
type TokenConfig struct {
	TTL   time.Duration
	Bytes int
}

// DefaultTokenConfig returns the production token policy.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{TTL: DefaultTokenTTL, Bytes: DefaultTokenBytes}
}

// Validate checks the token configuration.
func (c TokenConfig) Validate() error {
	if c.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("ttl", c.TTL).Errorf("token TTL must be positive")
	}
	if c.Bytes < MinTokenBytes {
		return oops.Code("CONFIG_INVALID").
			With("bytes", c.Bytes).
			Errorf("token must carry at least %d random bytes", MinTokenBytes)
	}
	return nil
}

// TokenSource produces reset tokens and recognizes their shape.
type TokenSource interface {
	// Generate returns a new token and the instant it stops being valid.
	Generate() (token string, expiresAt time.Time, err error)

	// ValidateShape rejects strings that could not have come from Generate.
	ValidateShape(token string) error
}

// TokenGenerator creates URL-safe random reset tokens.
type TokenGenerator struct {
	cfg     TokenConfig
	now     func() time.Time
	entropy io.Reader
}

// TokenOption configures a TokenGenerator.
type TokenOption func(*TokenGenerator)

// WithTokenClock overrides the clock used to compute expiry.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(g *TokenGenerator) { g.now = now }
}

// WithEntropy overrides the random source. Tests only.
func WithEntropy(r io.Reader) TokenOption {
	return func(g *TokenGenerator) { g.entropy = r }
}

// NewTokenGenerator creates a TokenGenerator.
func NewTokenGenerator(cfg TokenConfig, opts ...TokenOption) (*TokenGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &TokenGenerator{cfg: cfg, now: time.Now, entropy: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate creates a token from the secure random source.
func (g *TokenGenerator) Generate() (string, time.Time, error) {
	buf := make([]byte, g.cfg.Bytes)
	if _, err := io.ReadFull(g.entropy, buf); err != nil {
		return "", time.Time{}, oops.Code(CodeTokenGenerateFailed).
			With("operation", "read entropy").
			With("requested_bytes", g.cfg.Bytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), g.now().Add(g.cfg.TTL), nil
}

// ValidateShape checks length and alphabet without touching storage.
func (g *TokenGenerator) ValidateShape(token string) error {
	if len(token) != base64.RawURLEncoding.EncodedLen(g.cfg.Bytes) {
		return oops.Code(CodeInvalidInput).
			With("length", len(token)).
			Wrapf(ErrInvalidInput, "reset token has wrong length")
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return oops.Code(CodeInvalidInput).Wrapf(ErrInvalidInput, "reset token is not base64url")
	}
	return nil
}

// HashToken returns the SHA-256 digest under which a token is stored.
// The plaintext token goes to the user; only the digest reaches the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Compile-time interface check.
var _ TokenSource = (*TokenGenerator)(nil)
