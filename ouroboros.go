// Package ouroboros wires a record store, the ownership protocol and the HTTP
// transport into one handle with a start/close lifecycle.
package ouroboros

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/ouroboros-blocks/internal/recordStore/badgerStore"
	"github.com/i5heu/ouroboros-blocks/internal/recordStore/sqlStore"
	"github.com/i5heu/ouroboros-blocks/pkg/apiServer"
	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
)

var (
	ErrNotStarted = errors.New("ouroboros: database not started")
	ErrClosed     = errors.New("ouroboros: database closed")
)

type recordStore interface {
	ownership.RecordStore
	io.Closer
}

// DB is the main handle. It owns the record store and the protocol running
// on top of it.
type DB struct {
	config Config

	mu       sync.RWMutex
	store    recordStore
	protocol *ownership.Protocol

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New validates conf and returns an unstarted handle. New does no I/O.
func New(conf Config) (*DB, error) { // A
	if conf.Backend == "" {
		conf.Backend = BackendBadger
	}
	switch conf.Backend {
	case BackendBadger:
		if !conf.InMemory && len(conf.Paths) == 0 {
			return nil, fmt.Errorf("at least one path must be provided in config")
		}
		if _, err := badgerStore.ParseCompression(conf.Compression); err != nil {
			return nil, err
		}
	case BackendSQLite:
		if conf.DSN == "" {
			return nil, fmt.Errorf("sqlite backend needs a dsn")
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", conf.Backend)
	}
	if conf.MaxBlockSize < 0 {
		return nil, fmt.Errorf("max block size must not be negative")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	if conf.StoreLogger == nil {
		conf.StoreLogger = defaultStoreLogger()
	}
	return &DB{config: conf}, nil
}

// Start opens the record store. Only the first call has effect.
func (db *DB) Start(ctx context.Context) error { // A
	var startErr error
	db.startOnce.Do(func() {
		store, err := db.openStore(ctx)
		if err != nil {
			startErr = err
			return
		}

		opts := []ownership.Option{ownership.WithLogger(db.config.Logger)}
		if db.config.MaxBlockSize > 0 {
			opts = append(opts, ownership.WithMaxBlockSize(db.config.MaxBlockSize))
		}

		db.mu.Lock()
		db.store = store
		db.protocol = ownership.New(store, opts...)
		db.mu.Unlock()

		db.started.Store(true)
		db.config.Logger.Info("ouroboros-blocks started", "backend", db.config.Backend)
	})
	return startErr
}

func (db *DB) openStore(ctx context.Context) (recordStore, error) { // A
	switch db.config.Backend {
	case BackendSQLite:
		store, err := sqlStore.Open(ctx, sqlStore.Config{
			DSN:    db.config.DSN,
			Logger: db.config.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init sql store: %w", err)
		}
		return store, nil
	default:
		comp, err := badgerStore.ParseCompression(db.config.Compression)
		if err != nil {
			return nil, err
		}
		cfg := badgerStore.StoreConfig{
			InMemory:      db.config.InMemory,
			MinimumFreeGB: db.config.MinimumFreeGB,
			Compression:   comp,
			Logger:        db.config.StoreLogger,
		}
		if !db.config.InMemory {
			cfg.Path = filepath.Join(db.config.Paths[0], "blocks")
			if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", cfg.Path, err)
			}
		}
		store, err := badgerStore.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("init badger store: %w", err)
		}
		return store, nil
	}
}

// Run starts the database, blocks until ctx is canceled, and then closes it
// with a bounded deadline.
func (db *DB) Run(ctx context.Context) error { // A
	if err := db.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.Close(shutdownCtx)
}

// Close releases the record store. Close is idempotent.
func (db *DB) Close(ctx context.Context) error { // A
	var closeErr error
	db.closeOnce.Do(func() {
		db.mu.Lock()
		store := db.store
		db.store = nil
		db.protocol = nil
		db.mu.Unlock()
		if store != nil {
			if err := store.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close store: %w", err))
			}
		}
		db.config.Logger.Info("ouroboros-blocks closed")
	})
	return closeErr
}

// Protocol returns the ownership protocol of a started handle.
func (db *DB) Protocol() (*ownership.Protocol, error) { // A
	if !db.started.Load() {
		return nil, ErrNotStarted
	}
	db.mu.RLock()
	p := db.protocol
	db.mu.RUnlock()
	if p == nil {
		return nil, ErrClosed
	}
	return p, nil
}

// Handler returns the JSON API for a started handle.
func (db *DB) Handler(opts ...apiServer.Option) (http.Handler, error) { // A
	p, err := db.Protocol()
	if err != nil {
		return nil, err
	}
	opts = append([]apiServer.Option{apiServer.WithLogger(db.config.Logger)}, opts...)
	return apiServer.New(p, opts...), nil
}
