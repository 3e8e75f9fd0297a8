// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password-reset tokens to users.
//
// Every sender implements auth.NotificationSender. Delivery is best-effort:
// the reset flow logs failures and never rolls back an issued token.
//
//   - LogSender - writes the notice to a slog.Logger, for development
//   - SESSender - Amazon SES templated email
//   - AMQPSender - publishes to a RabbitMQ exchange for an external mailer
//   - Retrying - retries another sender with exponential backoff
package notify
