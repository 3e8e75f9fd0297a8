// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/credreset/internal/auth"
)

// tokenPrefixLen is how much of a token LogSender shows when redacting.
const tokenPrefixLen = 6

// LogSender writes reset notices to a logger instead of delivering them.
type LogSender struct {
	logger      *slog.Logger
	revealToken bool
}

// NewLogSender creates a LogSender. With revealToken the full token is
// logged, which is only acceptable on a developer machine.
func NewLogSender(logger *slog.Logger, revealToken bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, revealToken: revealToken}
}

// Send implements auth.NotificationSender.
func (s *LogSender) Send(ctx context.Context, address, token string, notice auth.ResetNotice) (auth.DeliveryResult, error) {
	shown := token
	if !s.revealToken {
		shown = redact(token)
	}
	id := ulid.Make().String()
	s.logger.InfoContext(ctx, "password reset notice",
		"message_id", id,
		"address", address,
		"username", notice.Username,
		"user_id", notice.UserID.String(),
		"token", shown,
		"expires_at", notice.ExpiresAt,
	)
	return auth.DeliveryResult{Provider: "log", MessageID: id}, nil
}

func redact(token string) string {
	if len(token) <= tokenPrefixLen {
		return "..."
	}
	return token[:tokenPrefixLen] + "..."
}

var _ auth.NotificationSender = (*LogSender)(nil)
