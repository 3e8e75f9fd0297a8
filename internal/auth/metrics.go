// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for reset flow metrics.
const (
	OutcomeIssued       = "issued"
	OutcomeUnknownUser  = "unknown_user"
	OutcomeSuccess      = "success"
	OutcomeRejected     = "invalid_or_expired"
	OutcomePolicy       = "policy_violation"
	OutcomeUnavailable  = "store_unavailable"
	OutcomeInternal     = "internal_error"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// ResetsIssued counts IssueReset calls by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var ResetsIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credreset_resets_issued_total",
		Help: "Total number of password reset requests by outcome",
	},
	[]string{"outcome"},
)

// ResetsCompleted counts CompleteReset calls by outcome.
var ResetsCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credreset_resets_completed_total",
		Help: "Total number of password reset completions by outcome",
	},
	[]string{"outcome"},
)

// Notifications counts reset notification deliveries by status.
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credreset_notifications_total",
		Help: "Total number of reset notifications by delivery status",
	},
	[]string{"status"},
)

// TokensPurged counts token rows removed by the hygiene sweep.
var TokensPurged = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "credreset_tokens_purged_total",
		Help: "Total number of terminal reset tokens purged",
	},
)

// RegisterMetrics registers auth metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ResetsIssued)
	reg.MustRegister(ResetsCompleted)
	reg.MustRegister(Notifications)
	reg.MustRegister(TokensPurged)
}

func recordIssued(outcome string) {
	ResetsIssued.WithLabelValues(outcome).Inc()
}

func recordCompleted(outcome string) {
	ResetsCompleted.WithLabelValues(outcome).Inc()
}

func recordNotification(status string) {
	Notifications.WithLabelValues(status).Inc()
}

// RecordPurged adds n to the purged-token counter.
func RecordPurged(n int64) {
	TokensPurged.Add(float64(n))
}
