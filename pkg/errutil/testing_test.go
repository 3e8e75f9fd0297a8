// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/credreset/pkg/errutil"
)

var errSentinel = errors.New("reset token expired")

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("RESET_TOKEN_INVALID").Errorf("test error")
	errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("operation", "IssueToken").Errorf("test error")
	errutil.AssertErrorContext(t, err, "operation", "IssueToken")
}

func TestAssertCodedSentinel(t *testing.T) {
	err := oops.Code("STORE_UNAVAILABLE").With("operation", "IssueToken").Wrap(errSentinel)
	errutil.AssertCodedSentinel(t, err, errSentinel, "STORE_UNAVAILABLE")
}
