// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a password hashing scheme.
type Algorithm string

// Supported hashing algorithms.
const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// bcryptMaxBytes is the input limit of bcrypt; longer inputs are rejected
// rather than silently truncated.
const bcryptMaxBytes = 72

// Upper bounds on argon2id work factors, applied to configuration and to
// stored verifiers alike so a corrupt verifier cannot exhaust memory.
const (
	maxArgon2MemoryKiB = 1 << 22 // 4 GiB
	maxArgon2Time      = 64
)

// HasherConfig holds the work factor of the hasher. Verification never reads
// it: every verifier carries its own parameters.
type HasherConfig struct {
	Algorithm Algorithm

	// argon2id parameters (OWASP-recommended defaults).
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
	SaltLength      uint32
	KeyLength       uint32

	// BcryptCost is used when Algorithm is bcrypt.
	BcryptCost int

	// MinLength is the shortest plaintext Hash accepts, in bytes.
	MinLength int
}

// DefaultHasherConfig returns production parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm:       AlgorithmArgon2id,
		Argon2Time:      1,
		Argon2MemoryKiB: 64 * 1024,
		Argon2Threads:   4,
		SaltLength:      16,
		KeyLength:       32,
		BcryptCost:      bcrypt.DefaultCost,
		MinLength:       8,
	}
}

// Validate checks that the configuration describes a usable hasher.
func (c HasherConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmArgon2id:
		if c.Argon2Time == 0 || c.Argon2MemoryKiB == 0 || c.Argon2Threads == 0 {
			return oops.Code("CONFIG_INVALID").
				With("time", c.Argon2Time).
				With("memory_kib", c.Argon2MemoryKiB).
				With("threads", c.Argon2Threads).
				Errorf("argon2id time, memory and threads must be positive")
		}
		if c.Argon2Time > maxArgon2Time || c.Argon2MemoryKiB > maxArgon2MemoryKiB {
			return oops.Code("CONFIG_INVALID").
				With("time", c.Argon2Time).
				With("memory_kib", c.Argon2MemoryKiB).
				Errorf("argon2id time must be at most %d and memory at most %d KiB", maxArgon2Time, maxArgon2MemoryKiB)
		}
		if c.SaltLength < 8 || c.KeyLength < 16 {
			return oops.Code("CONFIG_INVALID").
				With("salt_length", c.SaltLength).
				With("key_length", c.KeyLength).
				Errorf("argon2id salt must be at least 8 bytes and key at least 16 bytes")
		}
	case AlgorithmBcrypt:
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			return oops.Code("CONFIG_INVALID").
				With("cost", c.BcryptCost).
				Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("algorithm", c.Algorithm).
			Errorf("unsupported hash algorithm %q", c.Algorithm)
	}
	if c.MinLength < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("minimum plaintext length must be at least 1")
	}
	return nil
}

// CredentialHasher turns plaintext secrets into verifiers and checks them.
type CredentialHasher interface {
	// Hash produces a salted verifier for the plaintext.
	Hash(plaintext string) (string, error)

	// Verify checks the plaintext against a stored verifier.
	// Returns (true, nil) on match, (false, nil) on mismatch, and
	// (false, ErrCorruptVerifier) when the verifier cannot be parsed.
	Verify(plaintext, verifier string) (bool, error)
}

// Hasher implements CredentialHasher with argon2id or bcrypt.
type Hasher struct {
	cfg HasherConfig
}

// NewHasher creates a Hasher from a validated configuration.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// Hash produces a verifier for the plaintext using the configured algorithm.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", oops.Code(CodeInvalidInput).Wrapf(ErrInvalidInput, "password cannot be empty")
	}
	if len(plaintext) < h.cfg.MinLength {
		return "", oops.Code(CodeInvalidInput).
			With("min", h.cfg.MinLength).
			Wrapf(ErrInvalidInput, "password must be at least %d characters", h.cfg.MinLength)
	}

	if h.cfg.Algorithm == AlgorithmBcrypt {
		return h.hashBcrypt(plaintext)
	}
	return h.hashArgon2id(plaintext)
}

func (h *Hasher) hashArgon2id(plaintext string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "generate salt").Wrap(err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.cfg.Argon2Time, h.cfg.Argon2MemoryKiB, h.cfg.Argon2Threads, h.cfg.KeyLength)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Argon2MemoryKiB,
		h.cfg.Argon2Time,
		h.cfg.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Hasher) hashBcrypt(plaintext string) (string, error) {
	if len(plaintext) > bcryptMaxBytes {
		return "", oops.Code(CodeInvalidInput).
			With("max", bcryptMaxBytes).
			Wrapf(ErrInvalidInput, "password must be at most %d bytes for bcrypt", bcryptMaxBytes)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cfg.BcryptCost)
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "bcrypt").Wrap(err)
	}
	return string(out), nil
}

// Verify checks the plaintext against a verifier produced by any supported algorithm.
func (h *Hasher) Verify(plaintext, verifier string) (bool, error) {
	switch {
	case strings.HasPrefix(verifier, "$argon2id$"):
		return verifyArgon2id(plaintext, verifier)
	case strings.HasPrefix(verifier, "$2a$"), strings.HasPrefix(verifier, "$2b$"), strings.HasPrefix(verifier, "$2y$"):
		return verifyBcrypt(plaintext, verifier)
	default:
		return false, corruptVerifier("unsupported verifier algorithm")
	}
}

func verifyArgon2id(plaintext, verifier string) (bool, error) {
	parts := strings.Split(verifier, "$")
	if len(parts) != 6 {
		return false, corruptVerifier("invalid argon2id verifier format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, corruptVerifier("invalid argon2id version field")
	}
	if version != argon2.Version {
		return false, corruptVerifier("unsupported argon2id version")
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, corruptVerifier("invalid argon2id parameters")
	}
	// threads must fit in uint8 without truncation
	if memory == 0 || iterations == 0 || threads == 0 || threads > 255 ||
		memory > maxArgon2MemoryKiB || iterations > maxArgon2Time {
		return false, corruptVerifier("argon2id parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false, corruptVerifier("invalid argon2id salt")
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 || len(expected) > 1<<10 {
		return false, corruptVerifier("invalid argon2id key")
	}

	computed := argon2.IDKey([]byte(plaintext), salt, iterations, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func verifyBcrypt(plaintext, verifier string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(verifier), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, oops.Code(CodeCorruptVerifier).With("algorithm", AlgorithmBcrypt).Wrap(errors.Join(ErrCorruptVerifier, err))
	}
}

func corruptVerifier(reason string) error {
	return oops.Code(CodeCorruptVerifier).Wrapf(ErrCorruptVerifier, "%s", reason)
}

// Compile-time interface check.
var _ CredentialHasher = (*Hasher)(nil)
