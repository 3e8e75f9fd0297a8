// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/credreset/internal/config"
	"github.com/holomush/credreset/internal/notify"
	"github.com/holomush/credreset/pkg/errutil"
)

// stubTerminal replaces the terminal seams for one test.
func stubTerminal(t *testing.T, terminal bool, answers ...string) {
	t.Helper()
	prevRead, prevIsTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = prevRead, prevIsTerm })

	isTerminal = func(int) bool { return terminal }
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestPromptPassword_RequiresTerminal(t *testing.T) {
	stubTerminal(t, false)

	_, err := promptPassword(new(bytes.Buffer), "Password: ")
	errutil.AssertErrorCode(t, err, "PASSWORD_PROMPT_UNAVAILABLE")
}

func TestPromptPassword(t *testing.T) {
	stubTerminal(t, true, "s3cret-pass")
	var w bytes.Buffer

	pw, err := promptPassword(&w, "Password: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", pw)
	assert.Equal(t, "Password: \n", w.String())
}

func TestPromptNewPassword(t *testing.T) {
	t.Run("matching entries", func(t *testing.T) {
		stubTerminal(t, true, "N3w-password", "N3w-password")
		pw, err := promptNewPassword(new(bytes.Buffer))
		require.NoError(t, err)
		assert.Equal(t, "N3w-password", pw)
	})

	t.Run("mismatch", func(t *testing.T) {
		stubTerminal(t, true, "N3w-password", "N3w-passw0rd")
		_, err := promptNewPassword(new(bytes.Buffer))
		errutil.AssertErrorCode(t, err, "PASSWORD_MISMATCH")
	})

	t.Run("read failure", func(t *testing.T) {
		stubTerminal(t, true)
		_, err := promptNewPassword(new(bytes.Buffer))
		errutil.AssertErrorCode(t, err, "PASSWORD_PROMPT_FAILED")
	})
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"newline", "secret\nignored\n", "secret"},
		{"crlf", "secret\r\n", "secret"},
		{"no trailing newline", "secret", "secret"},
		{"empty first line", "\nsecond\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLine(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLine_Errors(t *testing.T) {
	_, err := readLine(strings.NewReader(""))
	errutil.AssertErrorCode(t, err, "INPUT_EMPTY")

	_, err = readLine(iotest.ErrReader(errors.New("broken pipe")))
	errutil.AssertErrorCode(t, err, "INPUT_READ_FAILED")
}

func TestBuildSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))

	sender, closeFn, err := buildSender(context.Background(), config.NotifySettings{Provider: config.ProviderLog}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &notify.LogSender{}, sender)

	_, _, err = buildSender(context.Background(), config.NotifySettings{Provider: "pigeon"}, logger)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
