// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewCheckCredentialCmd creates the check-credential subcommand.
func NewCheckCredentialCmd(deps *Deps) *cobra.Command {
	var passwordFromStdin bool

	cmd := &cobra.Command{
		Use:   "check-credential <username>",
		Short: "Verify a password against the stored credential",
		Long: `Verify a password for the named user. The command exits non-zero when the
password is wrong or the user does not exist, without saying which.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(passwordFromStdin, cmd.InOrStdin(), cmd.ErrOrStderr(), func(w io.Writer) (string, error) {
				return promptPassword(w, "Password: ")
			})
			if err != nil {
				return err
			}
			return runCheckCredential(cmd, deps, args[0], password)
		},
	}
	cmd.Flags().BoolVar(&passwordFromStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func runCheckCredential(cmd *cobra.Command, deps *Deps, username, password string) error {
	e, err := loadEnv(cmd, deps)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	h, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	ctrl, cleanup, err := e.newController(ctx, h.Store)
	if err != nil {
		return err
	}
	defer cleanup(ctx)

	ok, err := ctrl.CheckCredential(ctx, username, password)
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code("CREDENTIAL_REJECTED").Errorf("invalid username or password")
	}
	cmd.Println("Credential accepted.")
	return nil
}
