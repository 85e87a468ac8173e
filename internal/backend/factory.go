package backend

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Options{
		Dialect:    config.Dialect,
		DSN:        config.DSN,
		MaxRetries: config.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", config.Dialect, err)
	}

	var bus *amqp.Client
	if config.AMQPURL != "" {
		bus, err = amqp.NewClient(config.AMQPURL, config.Topology)
		if err != nil {
			if config.RequireBus {
				store.Close()
				return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
			}
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			bus = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.Topology.Exchange,
				"events_queue", config.Topology.EventsQueue,
				"recompute_queue", config.Topology.RecomputeQueue)
		}
	}

	size, ttl := config.SummaryCacheSize, config.SummaryCacheTTL
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	summaries := cache.NewLRUCache[core.MonthSummary](size, ttl)

	// A nil *amqp.Client must not become a non-nil Publisher.
	var publisher services.Publisher
	if bus != nil {
		publisher = bus
	}
	svc := services.NewLedgerService(store, publisher, summaries)

	f.logger.Info("Initialized ledger backend",
		"dialect", string(config.Dialect),
		"amqp_enabled", bus != nil,
		"summary_cache_size", size)

	return &BackendResult{
		Service:   svc,
		Store:     store,
		Bus:       bus,
		Summaries: summaries,
		Cleanup:   svc.Close,
	}, nil
}
