// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/internal/auth/authtest"
	authpg "github.com/holomush/credreset/internal/auth/postgres"
	"github.com/holomush/credreset/internal/store"
)

// testEnv holds the database and the controller under test.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	hasher    *auth.Hasher
	sender    *authtest.RecordingSender
	ctrl      *auth.ResetFlowController
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("credreset_test"),
		postgres.WithUsername("credreset"),
		postgres.WithPassword("credreset"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	cfg := store.DefaultPoolConfig()
	cfg.MaxConns = 24
	env.pool, err = store.Open(ctx, connStr, cfg)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hcfg := auth.DefaultHasherConfig()
	hcfg.Argon2MemoryKiB = 1024
	hcfg.Argon2Threads = 1
	env.hasher, err = auth.NewHasher(hcfg)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	tokens, err := auth.NewTokenGenerator(auth.DefaultTokenConfig())
	if err != nil {
		env.cleanup()
		return nil, err
	}
	env.sender = &authtest.RecordingSender{}
	env.ctrl, err = auth.NewResetFlowController(
		authpg.NewCredentialStore(env.pool),
		env.hasher, tokens, auth.DefaultPasswordPolicy(), env.sender,
	)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.ctrl != nil {
		_ = e.ctrl.Drain(context.Background())
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

// createUser inserts a user with password plaintext and a contact address.
func (e *testEnv) createUser(username, plaintext string) ulid.ULID {
	verifier, err := e.hasher.Hash(plaintext)
	Expect(err).NotTo(HaveOccurred())
	id := ulid.Make()
	_, err = e.pool.Exec(e.ctx, `
		INSERT INTO users (id, username, verifier, contact_address)
		VALUES ($1, $2, $3, $4)
	`, id.String(), username, verifier, username+"@example.com")
	Expect(err).NotTo(HaveOccurred())
	return id
}

// issue runs IssueReset and waits for the notice.
func (e *testEnv) issue(username string) string {
	Expect(e.ctrl.IssueReset(e.ctx, username)).To(Succeed())
	Expect(e.ctrl.Drain(e.ctx)).To(Succeed())
	d, ok := e.sender.Last()
	Expect(ok).To(BeTrue())
	return d.Token
}

var _ = Describe("Password reset flow", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	It("rotates the credential with a fresh token", func() {
		env.createUser("alice", "Original-pass1")
		token := env.issue("ALICE")

		Expect(env.ctrl.ValidateToken(env.ctx, token)).To(Succeed())
		Expect(env.ctrl.CompleteReset(env.ctx, token, "N3w-password")).To(Succeed())

		ok, err := env.ctrl.CheckCredential(env.ctx, "alice", "N3w-password")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = env.ctrl.CheckCredential(env.ctx, "alice", "Original-pass1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		Expect(env.ctrl.CompleteReset(env.ctx, token, "An0ther-pass")).
			To(MatchError(auth.ErrInvalidOrExpiredToken))
	})

	It("invalidates an earlier token when a new one is issued", func() {
		env.createUser("bob", "Original-pass1")
		first := env.issue("bob")
		second := env.issue("bob")

		Expect(env.ctrl.ValidateToken(env.ctx, first)).To(MatchError(auth.ErrInvalidOrExpiredToken))
		Expect(env.ctrl.CompleteReset(env.ctx, second, "N3w-password")).To(Succeed())
	})

	It("lets exactly one of many concurrent completions win", func() {
		env.createUser("carol", "Original-pass1")
		token := env.issue("carol")

		const racers = 8
		var (
			wg       sync.WaitGroup
			wins     atomic.Int32
			rejected atomic.Int32
		)
		start := make(chan struct{})
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				<-start
				err := env.ctrl.CompleteReset(env.ctx, token, "Rac3-password")
				if err == nil {
					wins.Add(1)
					return
				}
				Expect(err).To(MatchError(auth.ErrInvalidOrExpiredToken))
				rejected.Add(1)
			}()
		}
		close(start)
		wg.Wait()

		Expect(wins.Load()).To(Equal(int32(1)))
		Expect(rejected.Load()).To(Equal(int32(racers - 1)))
	})

	It("answers an unknown username exactly like a known one", func() {
		before := len(env.sender.Deliveries())
		Expect(env.ctrl.IssueReset(env.ctx, "nobody")).To(Succeed())
		Expect(env.ctrl.Drain(env.ctx)).To(Succeed())
		Expect(env.sender.Deliveries()).To(HaveLen(before))
	})
})
