package backend

import (
	"context"
	"errors"

	"github.com/Sonrial/family-budget/internal/amqp"
	"github.com/Sonrial/family-budget/internal/cache"
	"github.com/Sonrial/family-budget/internal/services"
	"github.com/Sonrial/family-budget/internal/storage"
)

// CleanupFunc releases a resource opened by the factory.
type CleanupFunc func() error

// Backend bundles the store with the optional collaborators wired around
// it: the balance cache, the event publisher and the cache sweeper.
type Backend struct {
	Type  BackendType
	Store storage.Store
	Cache services.BalanceCache
	// Sweeper cleans the in-process caches; it is empty with Redis.
	Sweeper *cache.Manager
	// Events is nil when AMQP is disabled or unreachable at startup.
	Events *amqp.Client

	pinger  func(context.Context) error
	cleanup []CleanupFunc
}

// Ready pings the store when it supports it.
func (b *Backend) Ready(ctx context.Context) error {
	if b.pinger == nil {
		return nil
	}
	return b.pinger(ctx)
}

// ServiceOptions wires the cache and the publisher into the services.
func (b *Backend) ServiceOptions() []services.Option {
	opts := []services.Option{services.WithBalanceCache(b.Cache)}
	if b.Events != nil {
		opts = append(opts, services.WithEvents(b.Events))
	}
	return opts
}

// Close releases resources in reverse opening order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanup = nil
	return errors.Join(errs...)
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
