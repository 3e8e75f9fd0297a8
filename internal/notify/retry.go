// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/pkg/errutil"
)

// Retrying retries a sender with exponential backoff. The caller's context
// bounds all attempts together.
type Retrying struct {
	next       auth.NotificationSender
	maxRetries uint64
	base       time.Duration
	logger     *slog.Logger
}

// NewRetrying wraps next. maxRetries is the number of retries after the first attempt.
func NewRetrying(next auth.NotificationSender, maxRetries uint64, base time.Duration, logger *slog.Logger) *Retrying {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, maxRetries: maxRetries, base: base, logger: logger}
}

// Send implements auth.NotificationSender.
func (r *Retrying) Send(ctx context.Context, address, token string, notice auth.ResetNotice) (auth.DeliveryResult, error) {
	var (
		result  auth.DeliveryResult
		attempt int
	)
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := r.next.Send(ctx, address, token, notice)
		if err != nil {
			r.logger.DebugContext(ctx, "notification attempt failed",
				"attempt", attempt,
				"user_id", notice.UserID.String(),
				"error", err,
			)
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		// A new error, not a wrap: oops reports the innermost code.
		return auth.DeliveryResult{}, oops.Code("NOTIFY_RETRIES_EXHAUSTED").
			With("attempts", attempt).
			With("last_code", errutil.Code(err)).
			Errorf("notification failed after %d attempts: %s", attempt, err)
	}
	return result, nil
}

var _ auth.NotificationSender = (*Retrying)(nil)
