package backend

import (
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/storage"
)

// Config holds configuration for backend creation
type Config struct {
	Dialect    storage.Dialect
	DSN        string
	MaxRetries uint64

	AMQPURL  string
	Topology amqp.Topology
	// RequireBus makes an unreachable broker fatal instead of degrading to
	// running without events. The recompute worker sets it.
	RequireBus bool

	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	dialect := storage.Dialect(appConfig.DataBackend)
	if !dialect.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Dialect:    dialect,
		DSN:        appConfig.DSN(),
		MaxRetries: uint64(appConfig.TxMaxRetries),
		AMQPURL:    appConfig.AMQPURL,
		Topology: amqp.Topology{
			Exchange:       appConfig.AMQPExchange,
			EventsQueue:    appConfig.AMQPEventsQueue,
			RecomputeQueue: appConfig.AMQPRecomputeQueue,
		},
		SummaryCacheSize: appConfig.SummaryCacheSize,
		SummaryCacheTTL:  appConfig.SummaryCacheTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Dialect.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("data source is required for %s backend", c.Dialect)
	}
	if c.RequireBus && c.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required")
	}
	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{string(storage.DialectSQLite), string(storage.DialectPostgres)}
}
