// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ResetNotice is the context handed to a NotificationSender alongside the token.
// Rendering a message from it is the sender's concern.
type ResetNotice struct {
	UserID    ulid.ULID
	Username  string
	ExpiresAt time.Time
}

// DeliveryResult describes an accepted notification.
type DeliveryResult struct {
	Provider  string
	MessageID string
}

// NotificationSender delivers a reset token to a contact address on a best-effort basis.
type NotificationSender interface {
	Send(ctx context.Context, address, token string, notice ResetNotice) (DeliveryResult, error)
}
