package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/routing"
)

func sampleRecord(id string) ModuleRecord {
	meta := modular.ModuleMetadata{
		ID:          id,
		Name:        "Sample " + id,
		Description: "sample module",
		Version:     "1.2.3",
		Type:        modular.ModuleTypeAnalytics,
		EntryPoint:  id + ".Factory",
		Dependencies: []modular.ModuleDependency{
			{ModuleID: "auth", VersionRequirement: ">=1.0.0", Required: true},
		},
		APIEndpoints:  []string{"/status", "POST /jobs"},
		ConfigSchema:  map[string]any{"type": "object"},
		DefaultConfig: map[string]any{"limit": float64(5)},
	}
	return RecordFromMetadata(meta, modular.ModuleStatusActive, "admin", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func stores(t *testing.T) map[string]ModuleStore {
	t.Helper()
	sqlStore, err := OpenSQLite(context.Background(), "file::memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]ModuleStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestRecordFromMetadata(t *testing.T) {
	rec := sampleRecord("reports")
	assert.Equal(t, []string{"auth"}, rec.Dependencies)
	assert.Equal(t, []string{"/status", "/jobs"}, rec.APIEndpoints)
	assert.Equal(t, "analytics", rec.ModuleType)
	assert.Equal(t, "active", rec.Status)
}

func TestModuleStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			missing, err := s.FindByID(ctx, "reports")
			require.NoError(t, err)
			assert.Nil(t, missing)

			require.NoError(t, s.Create(ctx, sampleRecord("reports")))
			require.NoError(t, s.Create(ctx, sampleRecord("billing")))
			assert.ErrorIs(t, s.Create(ctx, sampleRecord("reports")), ErrRecordExists)

			got, err := s.FindByID(ctx, "reports")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, sampleRecord("reports"), *got)

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "billing", list[0].ID)

			require.NoError(t, s.Delete(ctx, "reports"))
			assert.ErrorIs(t, s.Delete(ctx, "reports"), ErrRecordNotFound)
			got, err = s.FindByID(ctx, "reports")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestSQLStore_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "file::memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.migrate(ctx))
	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, len(migrations), n)
}

func TestSQLStore_AuditLog(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "file::memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.LogAction(ctx, AuditEntry{UserID: "u1", Action: ActionModuleRegistered, ResourceType: "module", ResourceID: "reports", Description: "registered"}))
	require.NoError(t, s.LogAction(ctx, AuditEntry{UserID: "system", Action: ActionModuleEvicted, ResourceType: "module", ResourceID: "reports", Description: "evicted", Metadata: map[string]any{"reason": "memory_limit"}}))
	require.NoError(t, s.LogAction(ctx, AuditEntry{UserID: "u2", Action: ActionModuleRegistered, ResourceType: "module", ResourceID: "billing"}))

	entries, err := s.AuditLog(ctx, "reports", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionModuleEvicted, entries[0].Action)
	assert.Equal(t, "memory_limit", entries[0].Metadata["reason"])

	all, err := s.AuditLog(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLStore_WriteMetrics(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, "file::memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteMetrics(ctx, nil))
	require.NoError(t, s.WriteMetrics(ctx, map[string]routing.RouteMetricsView{
		"x:/a": {ModuleID: "x", Path: "/a", CallCount: 3, TotalDurationMs: 1.5},
		"x:/b": {ModuleID: "x", Path: "/b", CallCount: 1, ErrorCount: 1},
	}))
	n, err := s.MetricsSnapshotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, modular.StoreConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.Nil(t, b.Metrics)
	assert.NoError(t, b.Close())

	b, err = Open(ctx, modular.StoreConfig{Driver: "sqlite", DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, b.Metrics)
	assert.NoError(t, b.Close())

	_, err = Open(ctx, modular.StoreConfig{Driver: "postgres"}, nil)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestLoggerAuditSink(t *testing.T) {
	assert.NoError(t, NewLoggerAuditSink(nil).LogAction(context.Background(), AuditEntry{Action: "x"}))
}
