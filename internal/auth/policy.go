// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// PasswordPolicy is the minimum a new password must satisfy.
type PasswordPolicy struct {
	MinLength int // in runes
	MaxLength int // in runes, 0 = unlimited

	// MinClasses is how many of lower, upper, digit and symbol must appear.
	MinClasses int
}

// DefaultPasswordPolicy returns the production policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, MaxLength: 128, MinClasses: 2}
}

// Validate checks that the policy is self-consistent.
func (p PasswordPolicy) Validate() error {
	if p.MinLength < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("policy minimum length must be at least 1")
	}
	if p.MaxLength != 0 && p.MaxLength < p.MinLength {
		return oops.Code("CONFIG_INVALID").
			With("min", p.MinLength).
			With("max", p.MaxLength).
			Errorf("policy maximum length is below minimum")
	}
	if p.MinClasses < 0 || p.MinClasses > 4 {
		return oops.Code("CONFIG_INVALID").
			With("min_classes", p.MinClasses).
			Errorf("policy character classes must be between 0 and 4")
	}
	return nil
}

// Check returns ErrPolicyViolation, with the failed rule in context, when the
// plaintext does not satisfy the policy.
func (p PasswordPolicy) Check(plaintext string) error {
	n := utf8.RuneCountInString(plaintext)
	if n < p.MinLength {
		return oops.Code(CodePolicyViolation).
			With("rule", "min_length").
			With("min", p.MinLength).
			Wrapf(ErrPolicyViolation, "password must be at least %d characters", p.MinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return oops.Code(CodePolicyViolation).
			With("rule", "max_length").
			With("max", p.MaxLength).
			Wrapf(ErrPolicyViolation, "password must be at most %d characters", p.MaxLength)
	}
	if classes := characterClasses(plaintext); classes < p.MinClasses {
		return oops.Code(CodePolicyViolation).
			With("rule", "min_classes").
			With("min", p.MinClasses).
			With("got", classes).
			Wrapf(ErrPolicyViolation, "password must mix at least %d character classes", p.MinClasses)
	}
	return nil
}

func characterClasses(s string) int {
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r):
			symbol = true
		}
	}
	n := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			n++
		}
	}
	return n
}
