package backend

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "memory"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:        "postgres",
		DatabaseURL:        "postgres://localhost/ledger",
		TxMaxRetries:       3,
		AMQPExchange:       "ledger",
		AMQPEventsQueue:    "ledger.events",
		AMQPRecomputeQueue: "ledger.recompute",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.DialectPostgres, cfg.Dialect)
	assert.Equal(t, "postgres://localhost/ledger", cfg.DSN)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, "ledger.recompute", cfg.Topology.RecomputeQueue)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{Dialect: "oracle", DSN: "x"}.Validate())
	assert.Error(t, Config{Dialect: storage.DialectSQLite}.Validate())
	assert.Error(t, Config{Dialect: storage.DialectSQLite, DSN: "x", RequireBus: true}.Validate())
	assert.NoError(t, Config{Dialect: storage.DialectSQLite, DSN: "x"}.Validate())
	assert.ElementsMatch(t, []string{"sqlite", "postgres"}, GetBackendTypeStrings())
}

func TestCreateSQLiteBackend(t *testing.T) {
	factory := NewFactory(log.New(log.Config{Output: &bytes.Buffer{}}))

	res, err := factory.CreateBackend(context.Background(), Config{
		Dialect:          storage.DialectSQLite,
		DSN:              filepath.Join(t.TempDir(), "ledger.db"),
		SummaryCacheSize: 8,
		SummaryCacheTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Nil(t, res.Bus)
	require.NoError(t, res.Service.Ping(context.Background()))

	b, err := res.Service.CreateBudget(context.Background(), "Home")
	require.NoError(t, err)
	_, err = res.Service.GetMonthSummary(context.Background(), b.ID, 2025, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summaries.Size())
}
