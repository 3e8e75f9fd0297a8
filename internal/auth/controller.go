// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/credreset/pkg/errutil"
)

// DefaultNotificationTimeout bounds a single notification delivery.
const DefaultNotificationTimeout = 10 * time.Second

// issueAttempts is how many fresh tokens IssueReset tries on digest collision.
const issueAttempts = 2

var errGenerate = errors.New("reset token generation failed")

// ResetFlowController orchestrates issue -> notify -> validate -> consume -> rotate.
// It holds no coordination state of its own; all of it lives in the store.
type ResetFlowController struct {
	store         CredentialStore
	hasher        CredentialHasher
	tokens        TokenSource
	policy        PasswordPolicy
	sender        NotificationSender
	logger        *slog.Logger
	notifyTimeout time.Duration
	dummyVerifier string

	// inflight tracks detached notification deliveries for Drain.
	inflight sync.WaitGroup
}

// ControllerOption configures a ResetFlowController.
type ControllerOption func(*ResetFlowController)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *ResetFlowController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotificationTimeout bounds each notification delivery.
func WithNotificationTimeout(d time.Duration) ControllerOption {
	return func(c *ResetFlowController) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

// NewResetFlowController creates a ResetFlowController. All dependencies are required.
func NewResetFlowController(
	store CredentialStore,
	hasher CredentialHasher,
	tokens TokenSource,
	policy PasswordPolicy,
	sender NotificationSender,
	opts ...ControllerOption,
) (*ResetFlowController, error) {
	if store == nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").Errorf("credential hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").Errorf("token source is required")
	}
	if sender == nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").Errorf("notification sender is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").
			With("cause", err.Error()).
			Errorf("invalid password policy")
	}

	c := &ResetFlowController{
		store:         store,
		hasher:        hasher,
		tokens:        tokens,
		policy:        policy,
		sender:        sender,
		logger:        slog.Default(),
		notifyTimeout: DefaultNotificationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Unknown usernames are verified against this so CheckCredential costs
	// the same whether or not the account exists. It never matches anything.
	dummy, err := newDummyVerifier(hasher)
	if err != nil {
		return nil, oops.Code("CONTROLLER_INVALID_CONFIG").
			With("operation", "create dummy verifier").
			With("cause", err.Error()).
			Errorf("hasher cannot produce verifiers")
	}
	c.dummyVerifier = dummy

	return c, nil
}

// IssueReset starts a reset for username. The result is nil whether or not
// the account exists; only store failures are reported, as ErrStoreUnavailable.
// The notification is dispatched after the issuing transaction has committed
// and its outcome never affects the token.
func (c *ResetFlowController) IssueReset(ctx context.Context, username string) error {
	user, err := c.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.DebugContext(ctx, "reset requested for unknown username")
			recordIssued(OutcomeUnknownUser)
			return nil
		}
		recordIssued(OutcomeUnavailable)
		return c.storeUnavailable(ctx, "GetUserByUsername", err)
	}

	token, reset, err := c.issue(ctx, user)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// user vanished between lookup and lock; same outcome as unknown
			recordIssued(OutcomeUnknownUser)
			return nil
		}
		if errors.Is(err, errGenerate) || errors.Is(err, ErrTokenCollision) {
			// Nothing was stored and the caller can retry. The visible
			// outcome stays Accepted.
			recordIssued(OutcomeInternal)
			errutil.LogError(ctx, c.logger, "password reset issuance failed", err, "user_id", user.ID.String())
			return nil
		}
		recordIssued(OutcomeUnavailable)
		return c.storeUnavailable(ctx, "IssueToken", err)
	}

	recordIssued(OutcomeIssued)
	c.logger.InfoContext(ctx, "password reset issued",
		"user_id", user.ID.String(),
		"reset_id", reset.ID.String(),
		"expires_at", reset.ExpiresAt,
	)

	c.dispatch(ctx, user, token, reset)
	return nil
}

// issue generates a token and persists its digest, retrying once on collision.
func (c *ResetFlowController) issue(ctx context.Context, user *User) (string, *ResetToken, error) {
	var lastErr error
	for attempt := 1; attempt <= issueAttempts; attempt++ {
		token, expiresAt, err := c.tokens.Generate()
		if err != nil {
			return "", nil, errors.Join(errGenerate, err)
		}
		reset, err := c.store.IssueToken(ctx, user.ID, HashToken(token), expiresAt)
		if err == nil {
			return token, reset, nil
		}
		if !errors.Is(err, ErrTokenCollision) {
			return "", nil, err
		}
		c.logger.WarnContext(ctx, "reset token digest collision, regenerating", "attempt", attempt)
		lastErr = err
	}
	return "", nil, lastErr
}

// dispatch delivers the token in the background. The delivery is detached
// from the request's cancellation but bounded by the notification timeout.
func (c *ResetFlowController) dispatch(ctx context.Context, user *User, token string, reset *ResetToken) {
	if !user.HasContactAddress() {
		recordNotification(NotificationSkipped)
		c.logger.WarnContext(ctx, "reset issued for user without contact address",
			"code", CodeNotificationUnreachable,
			"user_id", user.ID.String(),
		)
		return
	}

	address := *user.ContactAddress
	notice := ResetNotice{UserID: user.ID, Username: user.Username, ExpiresAt: reset.ExpiresAt}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()

		result, err := c.sender.Send(sendCtx, address, token, notice)
		if err != nil {
			recordNotification(NotificationFailed)
			errutil.LogWarn(sendCtx, c.logger, "reset notification failed; token remains valid",
				oops.Code(CodeNotificationFailed).
					With("cause", err.Error()).
					With("cause_code", errutil.Code(err)).
					Errorf("notification delivery failed"),
				"user_id", user.ID.String(),
				"reset_id", reset.ID.String(),
			)
			return
		}
		recordNotification(NotificationSent)
		c.logger.InfoContext(sendCtx, "reset notification delivered",
			"user_id", user.ID.String(),
			"reset_id", reset.ID.String(),
			"provider", result.Provider,
			"message_id", result.MessageID,
		)
	}()
}

// Drain waits for in-flight notifications or for ctx to end.
func (c *ResetFlowController) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("NOTIFICATION_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}

// ValidateToken reports whether token is currently active, without consuming it.
// Returns nil, ErrInvalidOrExpiredToken or ErrStoreUnavailable.
func (c *ResetFlowController) ValidateToken(ctx context.Context, token string) error {
	if err := c.tokens.ValidateShape(token); err != nil {
		return invalidOrExpired()
	}
	if _, err := c.store.FindActiveToken(ctx, HashToken(token)); err != nil {
		if isTokenRejection(err) {
			c.logger.DebugContext(ctx, "reset token rejected", "reason", err.Error())
			return invalidOrExpired()
		}
		return c.storeUnavailable(ctx, "FindActiveToken", err)
	}
	return nil
}

// CompleteReset rotates the credential of the token's owner. Returns nil on
// success, ErrPolicyViolation, ErrInvalidOrExpiredToken or ErrStoreUnavailable.
func (c *ResetFlowController) CompleteReset(ctx context.Context, token, newPlaintext string) error {
	if err := c.policy.Check(newPlaintext); err != nil {
		recordCompleted(OutcomePolicy)
		return err
	}
	if err := c.tokens.ValidateShape(token); err != nil {
		recordCompleted(OutcomeRejected)
		return invalidOrExpired()
	}

	verifier, err := c.hasher.Hash(newPlaintext)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			recordCompleted(OutcomePolicy)
			return oops.Code(CodePolicyViolation).With("rule", "hasher").Wrap(ErrPolicyViolation)
		}
		recordCompleted(OutcomeInternal)
		errutil.LogError(ctx, c.logger, "hashing new credential failed", err)
		return oops.Code(CodeStoreUnavailable).With("operation", "Hash").Wrap(ErrStoreUnavailable)
	}

	reset, err := c.store.ConsumeTokenAndRotateCredential(ctx, HashToken(token), verifier)
	if err != nil {
		if isTokenRejection(err) {
			recordCompleted(OutcomeRejected)
			c.logger.InfoContext(ctx, "reset completion rejected", "reason", err.Error())
			return invalidOrExpired()
		}
		recordCompleted(OutcomeUnavailable)
		return c.storeUnavailable(ctx, "ConsumeTokenAndRotateCredential", err)
	}

	recordCompleted(OutcomeSuccess)
	c.logger.InfoContext(ctx, "password reset completed",
		"user_id", reset.UserID.String(),
		"reset_id", reset.ID.String(),
	)
	return nil
}

// CheckCredential verifies plaintext against the user's verifier. Unknown users
// and corrupt verifiers yield (false, nil); only store failures return an error.
func (c *ResetFlowController) CheckCredential(ctx context.Context, username, plaintext string) (bool, error) {
	user, err := c.store.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, c.storeUnavailable(ctx, "GetUserByUsername", err)
	}

	target := c.dummyVerifier
	if user != nil && err == nil {
		target = user.Verifier
	}

	// Always verify so timing does not reveal whether the user exists.
	ok, verifyErr := c.hasher.Verify(plaintext, target)
	if verifyErr != nil {
		// Fail closed. A corrupt stored verifier is a data-integrity problem.
		errutil.LogError(ctx, c.logger, "stored verifier is corrupt", verifyErr, "username", username)
		return false, nil
	}
	return ok && user != nil && err == nil, nil
}

func (c *ResetFlowController) storeUnavailable(ctx context.Context, operation string, err error) error {
	errutil.LogError(ctx, c.logger, "credential store failure", err, "operation", operation)
	return oops.Code(CodeStoreUnavailable).With("operation", operation).Wrap(ErrStoreUnavailable)
}

func invalidOrExpired() error {
	return oops.Code(CodeInvalidOrExpiredToken).Wrap(ErrInvalidOrExpiredToken)
}

func newDummyVerifier(hasher CredentialHasher) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return hasher.Hash(base64.RawStdEncoding.EncodeToString(buf))
}
