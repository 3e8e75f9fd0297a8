// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/holomush/credreset/internal/auth"
)

// Delivery is one notification seen by a RecordingSender.
type Delivery struct {
	Address string
	Token   string
	Notice  auth.ResetNotice
}

// RecordingSender records deliveries and optionally fails them.
type RecordingSender struct {
	mu         sync.Mutex
	deliveries []Delivery

	// Err, when non-nil, is returned from every Send after recording.
	Err error

	// Block, when non-nil, makes Send wait until it is closed or ctx ends.
	Block chan struct{}
}

// Send implements auth.NotificationSender.
func (s *RecordingSender) Send(ctx context.Context, address, token string, notice auth.ResetNotice) (auth.DeliveryResult, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return auth.DeliveryResult{}, ctx.Err()
		}
	}

	s.mu.Lock()
	s.deliveries = append(s.deliveries, Delivery{Address: address, Token: token, Notice: notice})
	s.mu.Unlock()

	if s.Err != nil {
		return auth.DeliveryResult{}, s.Err
	}
	return auth.DeliveryResult{Provider: "recording"}, nil
}

// Deliveries returns a copy of everything sent so far.
func (s *RecordingSender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Last returns the most recent delivery, or false if none.
func (s *RecordingSender) Last() (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return Delivery{}, false
	}
	return s.deliveries[len(s.deliveries)-1], true
}

var _ auth.NotificationSender = (*RecordingSender)(nil)
