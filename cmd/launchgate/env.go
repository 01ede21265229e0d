package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"

	"github.com/axmq/launchgate/config"
	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/push"
	"github.com/axmq/launchgate/session"
	"github.com/axmq/launchgate/store"
)

// environment holds the stores and registry shared by every command
type environment struct {
	cfg           *config.Config
	log           logger.Logger
	registry      *session.Registry
	registrations store.Store[push.Registration]
	db            *pebble.DB
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	return logger.NewSlogLogger(level, os.Stderr, logger.Options{NoColor: cfg.NoColor})
}

// openEnvironment opens the configured backend and loads every stored session
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, log: newLogger(cfg)}

	var (
		credentials store.Store[session.Credentials]
		accounts    session.AccountStoreFactory
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		credentials = store.NewMemoryStore[session.Credentials]()
		accounts = session.MemoryAccountStores()
		env.registrations = store.NewMemoryStore[push.Registration]()

	case config.BackendPebble:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		db, err := store.OpenPebble(cfg.PebblePath(), nil)
		if err != nil {
			return nil, err
		}
		env.db = db

		credentials, err = store.NewPebbleStore[session.Credentials](store.PebbleStoreConfig{DB: db, Prefix: "credentials:"})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		env.registrations, err = store.NewPebbleStore[push.Registration](store.PebbleStoreConfig{DB: db, Prefix: "pusher:"})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		accounts = session.PebbleAccountStores(db)

	case config.BackendRedis:
		base := store.RedisStoreConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		}

		credsCfg := base
		credsCfg.Prefix = base.Prefix + "credentials:"
		credentials, err = store.NewRedisStore[session.Credentials](credsCfg)
		if err != nil {
			return nil, err
		}

		regCfg := base
		regCfg.Prefix = base.Prefix + "pusher:"
		env.registrations, err = store.NewRedisStore[push.Registration](regCfg)
		if err != nil {
			_ = credentials.Close()
			return nil, err
		}
		accounts = session.RedisAccountStores(base)

	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store.Backend)
	}

	env.registry = session.NewRegistry(session.RegistryConfig{
		Credentials:   credentials,
		AccountStores: accounts,
		Logger:        env.log,
	})

	if err := env.registry.Load(ctx); err != nil {
		_ = env.Close()
		return nil, err
	}
	return env, nil
}

// Close releases the registry, then the shared database
func (e *environment) Close() error {
	var errs []error
	if err := e.registry.Close(); err != nil && !errors.Is(err, session.ErrRegistryClosed) {
		errs = append(errs, err)
	}
	if e.registrations != nil {
		if err := e.registrations.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
			errs = append(errs, err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
