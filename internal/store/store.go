package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/config"
)

var (
	// ErrNotFound is returned when a key does not exist. It says nothing about
	// the health of the store and never trips the circuit breaker.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by a store that has been closed
	ErrClosed = errors.New("store closed")
)

// Entry is a key and its value
type Entry struct {
	Key   string
	Value []byte
}

// Store is the downstream key-value data store
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent stores value only when key is unset and reports whether it did
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete returns ErrNotFound when key is unset
	Delete(ctx context.Context, key string) error
	// Scan returns up to limit entries whose key starts with prefix
	Scan(ctx context.Context, prefix string, limit int) ([]Entry, error)
	Close() error
}

// Open creates the store selected by cfg.Driver
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		}), nil
	case "badger":
		return OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
