package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/services"
	"ledger/internal/storage"
)

func setTestEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", dbPath)
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand("test")
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "migrate", "recompute"}, names)
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestMissingEnvFileIsAnError(t *testing.T) {
	setTestEnv(t)
	_, err := execute(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "migrate")
	require.Error(t, err)
}

func TestMigrateReportsVersion(t *testing.T) {
	setTestEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty=false")

	out, err = execute(t, "migrate", "--status")
	require.NoError(t, err)
	assert.NotContains(t, out, "version 0 ")
}

func TestRecomputeAllBudgets(t *testing.T) {
	dbPath := setTestEnv(t)
	ctx := context.Background()

	store, err := storage.OpenSQLite(ctx, dbPath)
	require.NoError(t, err)
	svc := services.NewLedgerService(store, nil, nil)
	budget, err := svc.CreateBudget(ctx, "Home")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	out, err := execute(t, "recompute")
	require.NoError(t, err)
	assert.Contains(t, out, budget.ID+":")

	_, err = execute(t, "recompute", "missing-budget")
	require.Error(t, err)
}

func TestWorkerRequiresBus(t *testing.T) {
	setTestEnv(t)
	_, err := execute(t, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMQP URL is required")
}
