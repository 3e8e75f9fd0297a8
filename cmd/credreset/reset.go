// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// drainGrace is added to the notification timeout when waiting for
// deliveries before the process exits.
const drainGrace = 2 * time.Second

// issueReply is printed whether or not the account exists.
const issueReply = "If the account exists and has a contact address, a reset notice is on its way."

// NewIssueResetCmd creates the issue-reset subcommand.
func NewIssueResetCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-reset <username>",
		Short: "Issue a password reset token and notify the user",
		Long: `Issue a new reset token for the named user, superseding any token issued
earlier, and deliver it through the configured notification provider.
The reply is the same whether or not the user exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssueReset(cmd, deps, args[0])
		},
	}
}

func runIssueReset(cmd *cobra.Command, deps *Deps, username string) error {
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
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Notify.Timeout+drainGrace)
		defer cancel()
		cleanup(drainCtx)
	}()

	if err := ctrl.IssueReset(ctx, username); err != nil {
		return err
	}
	cmd.Println(issueReply)
	return nil
}

// NewValidateTokenCmd creates the validate-token subcommand.
func NewValidateTokenCmd(deps *Deps) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "validate-token [token]",
		Short: "Check whether a reset token can still be redeemed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokenArg(cmd, args, fromStdin)
			if err != nil {
				return err
			}
			return runValidateToken(cmd, deps, token)
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "token-stdin", false, "read the token from stdin")
	return cmd
}

func runValidateToken(cmd *cobra.Command, deps *Deps, token string) error {
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

	if err := ctrl.ValidateToken(ctx, token); err != nil {
		return err
	}
	cmd.Println("Reset token is valid.")
	return nil
}

// NewCompleteResetCmd creates the complete-reset subcommand.
func NewCompleteResetCmd(deps *Deps) *cobra.Command {
	var (
		tokenFromStdin    bool
		passwordFromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "complete-reset [token]",
		Short: "Redeem a reset token and set a new password",
		Long: `Redeem a reset token and replace the user's password. The token is
consumed and can never be used again. The new password is read from the
terminal without echo unless --password-stdin is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenFromStdin && passwordFromStdin {
				return errBothFromStdin()
			}
			token, err := tokenArg(cmd, args, tokenFromStdin)
			if err != nil {
				return err
			}
			password, err := readSecret(passwordFromStdin, cmd.InOrStdin(), cmd.ErrOrStderr(), promptNewPassword)
			if err != nil {
				return err
			}
			return runCompleteReset(cmd, deps, token, password)
		},
	}
	cmd.Flags().BoolVar(&tokenFromStdin, "token-stdin", false, "read the token from stdin")
	cmd.Flags().BoolVar(&passwordFromStdin, "password-stdin", false, "read the new password from stdin")
	return cmd
}

func runCompleteReset(cmd *cobra.Command, deps *Deps, token, password string) error {
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

	if err := ctrl.CompleteReset(ctx, token, password); err != nil {
		return err
	}
	cmd.Println("Password updated.")
	return nil
}

// tokenArg returns the positional token or reads it from stdin.
func tokenArg(cmd *cobra.Command, args []string, fromStdin bool) (string, error) {
	switch {
	case fromStdin && len(args) > 0:
		return "", errTokenTwice()
	case fromStdin:
		return readLine(cmd.InOrStdin())
	case len(args) == 1:
		return args[0], nil
	default:
		return "", errTokenMissing()
	}
}
