// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// User is an account holder as seen by the credential lifecycle.
// ID and Username never change; Verifier changes only through
// CredentialStore.ConsumeTokenAndRotateCredential.
type User struct {
	ID             ulid.ULID
	Username       string
	Verifier       string
	ContactAddress *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasContactAddress reports whether notifications can reach the user.
func (u *User) HasContactAddress() bool {
	return u.ContactAddress != nil && *u.ContactAddress != ""
}
