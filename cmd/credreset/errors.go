// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import "github.com/samber/oops"

func errTokenMissing() error {
	return oops.Code("USAGE").Errorf("a token argument or --token-stdin is required")
}

func errTokenTwice() error {
	return oops.Code("USAGE").Errorf("give the token as an argument or on stdin, not both")
}

func errBothFromStdin() error {
	return oops.Code("USAGE").Errorf("--token-stdin and --password-stdin cannot be combined")
}
