// Package backend assembles the ledger service from configuration: the store
// dialect, the optional event bus and the month summary cache.
package backend

import (
	"context"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired service and the resources behind it.
type BackendResult struct {
	Service *services.LedgerService
	Store   *storage.Store
	// Bus is nil when no AMQP URL is configured or the broker was unreachable.
	Bus       *amqp.Client
	Summaries *cache.LRUCache[core.MonthSummary]
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
