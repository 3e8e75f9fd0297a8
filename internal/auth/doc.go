// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the credential and password-reset lifecycle.
//
// # Domain Types
//
// ResetToken records are created with NewResetToken, which validates the
// owner and expiry. A token is active until it is consumed, superseded by a
// newer issuance or passes its expiry; all three are terminal.
//
// # Components
//
//   - Hasher - argon2id (default) or bcrypt verifiers in PHC/modular format
//   - TokenGenerator - 256-bit base64url tokens; only the SHA-256 digest is stored
//   - PasswordPolicy - length and character-class rules for new passwords
//   - CredentialStore - transactional persistence, see the postgres subpackage
//   - ResetFlowController - the issue, validate and complete operations
//
// Callers of ResetFlowController only ever observe ErrInvalidOrExpiredToken,
// ErrPolicyViolation and ErrStoreUnavailable. The store's finer distinctions
// between unknown, expired, consumed and superseded tokens stay internal.
package auth
