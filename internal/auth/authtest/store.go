// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-memory test doubles for the auth package.
package authtest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/credreset/internal/auth"
)

// MemoryStore is a CredentialStore held in memory. A single mutex makes every
// method atomic, which gives the same all-or-nothing behavior as the
// transactional postgres store.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[ulid.ULID]*auth.User
	tokens map[string]*auth.ResetToken

	// Fail, when set, is consulted at the start of every method. A non-nil
	// return aborts the call with that error and changes nothing.
	Fail func(op string) error
}

// NewMemoryStore creates an empty MemoryStore using the real clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		users:  make(map[ulid.ULID]*auth.User),
		tokens: make(map[string]*auth.ResetToken),
	}
}

// SetClock overrides the clock used for expiry and timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser inserts a user and returns a copy of it.
func (s *MemoryStore) AddUser(username, verifier string, contact *string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u := &auth.User{
		ID:             ulid.Make(),
		Username:       username,
		Verifier:       verifier,
		ContactAddress: contact,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp
}

// Tokens returns copies of every token issued for userID, oldest first.
func (s *MemoryStore) Tokens(userID ulid.ULID) []auth.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.ResetToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b auth.ResetToken) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return out
}

// ActiveTokenCount returns how many of the user's tokens are active now.
func (s *MemoryStore) ActiveTokenCount(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.StateAt(now) == auth.TokenActive {
			n++
		}
	}
	return n
}

func (s *MemoryStore) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

// GetUserByUsername implements auth.CredentialStore.
func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByUsername"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetUserByID implements auth.CredentialStore.
func (s *MemoryStore) GetUserByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// IssueToken implements auth.CredentialStore.
func (s *MemoryStore) IssueToken(_ context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) (*auth.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("IssueToken"); err != nil {
		return nil, err
	}
	if _, ok := s.users[userID]; !ok {
		return nil, auth.ErrNotFound
	}
	if _, ok := s.tokens[tokenHash]; ok {
		return nil, auth.ErrTokenCollision
	}

	now := s.now()
	rt, err := auth.NewResetToken(userID, tokenHash, now, expiresAt)
	if err != nil {
		return nil, err
	}
	for _, t := range s.tokens {
		if t.UserID == userID && t.ConsumedAt == nil && t.InvalidatedAt == nil {
			at := now
			t.InvalidatedAt = &at
		}
	}
	s.tokens[tokenHash] = rt
	cp := *rt
	return &cp, nil
}

// FindActiveToken implements auth.CredentialStore.
func (s *MemoryStore) FindActiveToken(_ context.Context, tokenHash string) (*auth.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindActiveToken"); err != nil {
		return nil, err
	}
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if err := t.StateAt(s.now()).Err(); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// ConsumeTokenAndRotateCredential implements auth.CredentialStore.
func (s *MemoryStore) ConsumeTokenAndRotateCredential(_ context.Context, tokenHash, newVerifier string) (*auth.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ConsumeTokenAndRotateCredential"); err != nil {
		return nil, err
	}
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	now := s.now()
	if err := t.StateAt(now).Err(); err != nil {
		return nil, err
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	at := now
	t.ConsumedAt = &at
	u.Verifier = newVerifier
	u.UpdatedAt = now
	cp := *t
	return &cp, nil
}

// PurgeExpired implements auth.CredentialStore.
func (s *MemoryStore) PurgeExpired(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PurgeExpired"); err != nil {
		return 0, err
	}
	var n int64
	for hash, t := range s.tokens {
		if terminalBefore(t, olderThan) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}

func terminalBefore(t *auth.ResetToken, cutoff time.Time) bool {
	switch {
	case t.ConsumedAt != nil:
		return t.ConsumedAt.Before(cutoff)
	case t.InvalidatedAt != nil:
		return t.InvalidatedAt.Before(cutoff)
	default:
		return t.ExpiresAt.Before(cutoff)
	}
}

var _ auth.CredentialStore = (*MemoryStore)(nil)
