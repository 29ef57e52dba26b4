// Package backend selects and builds the ledger store from configuration.
package backend

import (
	"context"
	"fmt"

	"bilancio/internal/config"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/ledger/natskv"
	"bilancio/internal/ledger/sqlite"
	applog "bilancio/internal/log"
)

// Type identifies a ledger store implementation.
type Type string

const (
	NATSBackend   Type = "nats"
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case NATSBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result contains the store instance and optional cleanup function.
type Result struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory builds ledger stores from application configuration.
type Factory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// Create builds the store selected by cfg.DataBackend.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	backendType := Type(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.DataBackend)
	}

	switch backendType {
	case NATSBackend:
		return f.createNATSBackend(ctx, cfg)
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	default:
		return f.createMemoryBackend()
	}
}

func (f *Factory) createNATSBackend(ctx context.Context, cfg *config.Config) (*Result, error) {
	nc, js, err := natskv.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	store, err := natskv.New(ctx, js, cfg.NATSBucket)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("initialize NATS KV store: %w", err)
	}

	f.logger.Info("Initialized NATS backend",
		applog.FieldBucket, cfg.NATSBucket)

	return &Result{
		Store: store,
		Cleanup: func() error {
			nc.Close()
			return nil
		},
	}, nil
}

func (f *Factory) createSQLiteBackend(cfg *config.Config) (*Result, error) {
	store, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath)

	return &Result{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *Factory) createMemoryBackend() (*Result, error) {
	f.logger.Info("Initialized memory backend")

	return &Result{
		Store:   memory.New(),
		Cleanup: nil,
	}, nil
}
