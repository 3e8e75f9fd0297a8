// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads credreset settings from a YAML file and command-line
// flags and translates them into the configuration types of the auth,
// store and notify packages.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/internal/store"
)

// DatabaseURLEnv is consulted when neither the file nor a flag sets database_url.
const DatabaseURLEnv = "DATABASE_URL"

// Notification providers.
const (
	ProviderLog  = "log"
	ProviderSES  = "ses"
	ProviderAMQP = "amqp"
)

// Config is the complete credreset configuration.
type Config struct {
	DatabaseURL string         `koanf:"database_url" validate:"required"`
	LogFormat   string         `koanf:"log_format" validate:"oneof=json text"`
	LogLevel    string         `koanf:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string         `koanf:"metrics_addr"`
	Hasher      HasherSettings `koanf:"hasher"`
	Token       TokenSettings  `koanf:"token"`
	Policy      PolicySettings `koanf:"policy"`
	Notify      NotifySettings `koanf:"notify"`
	Store       StoreSettings  `koanf:"store"`
	Sweep       SweepSettings  `koanf:"sweep"`
}

// HasherSettings selects the algorithm and work factor for new verifiers.
type HasherSettings struct {
	Algorithm       string `koanf:"algorithm" validate:"oneof=argon2id bcrypt"`
	Argon2Time      uint32 `koanf:"argon2_time" validate:"gte=1"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib" validate:"gte=8"`
	Argon2Threads   uint8  `koanf:"argon2_threads" validate:"gte=1"`
	BcryptCost      int    `koanf:"bcrypt_cost" validate:"gte=4,lte=31"`
	MinLength       int    `koanf:"min_length" validate:"gte=1"`
}

// TokenSettings controls reset token generation.
type TokenSettings struct {
	TTL   time.Duration `koanf:"ttl" validate:"gt=0"`
	Bytes int           `koanf:"bytes" validate:"gte=16"`
}

// PolicySettings is the password policy applied to new passwords.
type PolicySettings struct {
	MinLength  int `koanf:"min_length" validate:"gte=1"`
	MaxLength  int `koanf:"max_length" validate:"gte=0"`
	MinClasses int `koanf:"min_classes" validate:"gte=0,lte=4"`
}

// NotifySettings selects and tunes the notification transport.
type NotifySettings struct {
	Provider     string        `koanf:"provider" validate:"oneof=log ses amqp"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	Retries      uint64        `koanf:"retries" validate:"lte=10"`
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"gte=0"`
	RevealToken  bool          `koanf:"reveal_token"`
	SES          SESSettings   `koanf:"ses" validate:"-"`
	AMQP         AMQPSettings  `koanf:"amqp" validate:"-"`
}

// SESSettings configures delivery through Amazon SES.
type SESSettings struct {
	Region   string `koanf:"region" validate:"required"`
	Source   string `koanf:"source" validate:"required,email"`
	Template string `koanf:"template" validate:"required"`
	ResetURL string `koanf:"reset_url" validate:"required,url"`
}

// AMQPSettings configures publishing to RabbitMQ.
type AMQPSettings struct {
	URL        string `koanf:"url" validate:"required,url"`
	Exchange   string `koanf:"exchange"`
	RoutingKey string `koanf:"routing_key" validate:"required"`
}

// StoreSettings configures the database pool and transactions.
type StoreSettings struct {
	TxTimeout       time.Duration `koanf:"tx_timeout" validate:"gt=0"`
	MaxConns        int32         `koanf:"max_conns" validate:"gte=1"`
	ConnectAttempts uint64        `koanf:"connect_attempts" validate:"gte=1"`
}

// SweepSettings controls the expired token sweeper.
type SweepSettings struct {
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	Retention time.Duration `koanf:"retention" validate:"gte=0"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	h := auth.DefaultHasherConfig()
	tok := auth.DefaultTokenConfig()
	pol := auth.DefaultPasswordPolicy()
	pool := store.DefaultPoolConfig()
	return Config{
		LogFormat:   "json",
		LogLevel:    "info",
		MetricsAddr: "127.0.0.1:9100",
		Hasher: HasherSettings{
			Algorithm:       string(h.Algorithm),
			Argon2Time:      h.Argon2Time,
			Argon2MemoryKiB: h.Argon2MemoryKiB,
			Argon2Threads:   h.Argon2Threads,
			BcryptCost:      h.BcryptCost,
			MinLength:       h.MinLength,
		},
		Token:  TokenSettings{TTL: tok.TTL, Bytes: tok.Bytes},
		Policy: PolicySettings{MinLength: pol.MinLength, MaxLength: pol.MaxLength, MinClasses: pol.MinClasses},
		Notify: NotifySettings{
			Provider:     ProviderLog,
			Timeout:      auth.DefaultNotificationTimeout,
			Retries:      2,
			RetryBackoff: 200 * time.Millisecond,
			AMQP:         AMQPSettings{Exchange: "credreset", RoutingKey: "password.reset"},
		},
		Store: StoreSettings{
			TxTimeout:       5 * time.Second,
			MaxConns:        pool.MaxConns,
			ConnectAttempts: pool.ConnectAttempts,
		},
		Sweep: SweepSettings{Interval: 5 * time.Minute, Retention: 24 * time.Hour},
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"database-url":   "database_url",
	"log-format":     "log_format",
	"log-level":      "log_level",
	"metrics-addr":   "metrics_addr",
	"token-ttl":      "token.ttl",
	"notify":         "notify.provider",
	"sweep-interval": "sweep.interval",
	"retention":      "sweep.retention",
}

// BindFlags registers the flags Load understands. Defaults mirror Default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection string (default $"+DatabaseURLEnv+")")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "minimum log level (debug, info, warn or error)")
	fs.String("metrics-addr", d.MetricsAddr, "observability server address, empty to disable")
	fs.Duration("token-ttl", d.Token.TTL, "lifetime of a reset token")
	fs.String("notify", d.Notify.Provider, "notification provider (log, ses or amqp)")
	fs.Duration("sweep-interval", d.Sweep.Interval, "interval between expired token sweeps")
	fs.Duration("retention", d.Sweep.Retention, "how long finished tokens are kept before purging")
}

// Load reads path (if non-empty) and then the flags in fs (if non-nil).
// Flags the user set override the file; the file overrides defaults.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode configuration")
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and then the derived component configs.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return invalid(err)
	}
	switch c.Notify.Provider {
	case ProviderSES:
		if err := validate.Struct(c.Notify.SES); err != nil {
			return invalid(err)
		}
	case ProviderAMQP:
		if err := validate.Struct(c.Notify.AMQP); err != nil {
			return invalid(err)
		}
	}

	if err := c.HasherConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := c.TokenConfig().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := c.PasswordPolicy().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		}
		return oops.Code("CONFIG_INVALID").
			With("fields", fields).
			Errorf("invalid configuration: %s", strings.Join(fields, ", "))
	}
	return oops.Code("CONFIG_INVALID").Wrap(err)
}

// HasherConfig converts the hasher settings.
func (c Config) HasherConfig() auth.HasherConfig {
	h := auth.DefaultHasherConfig()
	h.Algorithm = auth.Algorithm(c.Hasher.Algorithm)
	h.Argon2Time = c.Hasher.Argon2Time
	h.Argon2MemoryKiB = c.Hasher.Argon2MemoryKiB
	h.Argon2Threads = c.Hasher.Argon2Threads
	h.BcryptCost = c.Hasher.BcryptCost
	h.MinLength = c.Hasher.MinLength
	return h
}

// TokenConfig converts the token settings.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{TTL: c.Token.TTL, Bytes: c.Token.Bytes}
}

// PasswordPolicy converts the policy settings.
func (c Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:  c.Policy.MinLength,
		MaxLength:  c.Policy.MaxLength,
		MinClasses: c.Policy.MinClasses,
	}
}

// PoolConfig converts the store settings.
func (c Config) PoolConfig() store.PoolConfig {
	p := store.DefaultPoolConfig()
	p.MaxConns = c.Store.MaxConns
	p.ConnectAttempts = c.Store.ConnectAttempts
	return p
}
