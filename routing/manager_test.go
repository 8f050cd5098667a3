package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

func ok(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func testConfig() modular.RoutingConfig {
	return modular.RoutingConfig{APIVersion: 1, MaxCallCount: 100, MaxMetrics: 10}
}

type captured struct {
	mu    sync.Mutex
	types []string
}

func (c *captured) Emit(_ context.Context, eventType string, _ any) {
	c.mu.Lock()
	c.types = append(c.types, eventType)
	c.mu.Unlock()
}

func serve(t *testing.T, m *Manager, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestManager_MountsUnderNamespace(t *testing.T) {
	events := &captured{}
	m := NewManager(testConfig(), nil, events, nil)

	err := m.RegisterModule(context.Background(), "x", "xns", []Route{
		{Pattern: "/test", Methods: []string{http.MethodGet}, Handler: ok("x")},
	})
	require.NoError(t, err)

	rec := serve(t, m, http.MethodGet, "/api/v1/modules/xns/test")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, serve(t, m, http.MethodGet, "/api/v1/modules/x/test").Code)
	assert.Equal(t, []string{modular.EventTypeRoutesMounted}, events.types)
}

func TestManager_ConflictIsAllOrNothing(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.RegisterModule(ctx, "x", "x", []Route{
		{Pattern: "/test", Methods: []string{http.MethodGet}, Handler: ok("x")},
	}))

	err := m.RegisterModule(ctx, "y", "y", []Route{
		{Pattern: "/other", Methods: []string{http.MethodGet}, Handler: ok("y")},
		{Pattern: "/test", Methods: []string{http.MethodGet}, Handler: ok("y")},
	})
	require.ErrorIs(t, err, modular.ErrRouteConflict)
	assert.Contains(t, err.Error(), "module x")

	assert.False(t, m.Mounted("y"))
	assert.Empty(t, m.Routes("y"))
	assert.Equal(t, http.StatusNotFound, serve(t, m, http.MethodGet, "/api/v1/modules/y/other").Code)

	// The same path with a different method belongs to nobody yet.
	require.NoError(t, m.RegisterModule(ctx, "y", "y", []Route{
		{Pattern: "/test", Methods: []string{http.MethodPost}, Handler: ok("y")},
	}))
	assert.Equal(t, "y", serve(t, m, http.MethodPost, "/api/v1/modules/y/test").Body.String())
}

func TestManager_UnregisterModule(t *testing.T) {
	events := &captured{}
	m := NewManager(testConfig(), nil, events, nil)
	ctx := context.Background()
	require.NoError(t, m.RegisterModule(ctx, "x", "x", []Route{
		{Pattern: "/test", Methods: []string{http.MethodGet}, Handler: ok("x")},
	}))
	serve(t, m, http.MethodGet, "/api/v1/modules/x/test")
	require.Equal(t, 1, m.Metrics().Len())

	require.NoError(t, m.UnregisterModule(ctx, "x"))
	assert.Equal(t, http.StatusNotFound, serve(t, m, http.MethodGet, "/api/v1/modules/x/test").Code)
	assert.Zero(t, m.Metrics().Len())
	assert.Equal(t, []string{modular.EventTypeRoutesMounted, modular.EventTypeRoutesUnmounted}, events.types)

	assert.ErrorIs(t, m.UnregisterModule(ctx, "x"), modular.ErrModuleRoutesNotFound)

	// Released paths can be claimed by another module.
	require.NoError(t, m.RegisterModule(ctx, "y", "y", []Route{
		{Pattern: "/test", Methods: []string{http.MethodGet}, Handler: ok("y")},
	}))
}

func TestManager_UnregisterModuleWithoutRoutes(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.RegisterModule(ctx, "empty", "empty", nil))

	assert.ErrorIs(t, m.UnregisterModule(ctx, "empty"), modular.ErrModuleRoutesNotFound)
	assert.False(t, m.Mounted("empty"))
	// The mount is gone, so the module can mount again.
	require.NoError(t, m.RegisterModule(ctx, "empty", "empty", []Route{
		{Pattern: "/later", Methods: []string{http.MethodGet}, Handler: ok("empty")},
	}))
}

func TestManager_RejectsMalformedRoutes(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	ctx := context.Background()

	for name, r := range map[string]Route{
		"no slash":   {Pattern: "test", Methods: []string{http.MethodGet}, Handler: ok("")},
		"no handler": {Pattern: "/test", Methods: []string{http.MethodGet}},
		"bad method": {Pattern: "/test", Methods: []string{"BREW"}, Handler: ok("")},
	} {
		t.Run(name, func(t *testing.T) {
			err := m.RegisterModule(ctx, "x", "x", []Route{r})
			assert.ErrorIs(t, err, modular.ErrValidationFailed)
			assert.False(t, m.Mounted("x"))
		})
	}
}

func TestManager_SharedNamespaceRollsBack(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, m.RegisterModule(ctx, "x", "shared", []Route{
		{Pattern: "/a", Methods: []string{http.MethodGet}, Handler: ok("x")},
	}))

	err := m.RegisterModule(ctx, "y", "shared", []Route{
		{Pattern: "/b", Methods: []string{http.MethodGet}, Handler: ok("y")},
	})
	require.Error(t, err)
	assert.False(t, m.Mounted("y"))
	assert.Equal(t, "x", serve(t, m, http.MethodGet, "/api/v1/modules/shared/a").Body.String())
}

func TestManager_RecordsMetrics(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	fail := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	require.NoError(t, m.RegisterModule(context.Background(), "x", "x", []Route{
		{Pattern: "/ok", Methods: []string{http.MethodGet}, Handler: ok("")},
		{Pattern: "/fail", Methods: []string{http.MethodGet}, Handler: fail},
		{Pattern: "/items/{id}", Methods: []string{http.MethodGet}, Handler: ok("")},
	}))

	serve(t, m, http.MethodGet, "/api/v1/modules/x/ok")
	serve(t, m, http.MethodGet, "/api/v1/modules/x/fail")
	serve(t, m, http.MethodGet, "/api/v1/modules/x/items/1")
	serve(t, m, http.MethodGet, "/api/v1/modules/x/items/2")

	snap := m.Metrics().Snapshot("x")
	require.Len(t, snap, 3)
	assert.Equal(t, 1.0, snap["x:/ok"].SuccessRate)
	assert.Equal(t, 0.0, snap["x:/fail"].SuccessRate)
	assert.Equal(t, int64(2), snap["x:/items/{id}"].CallCount)
}

func TestStubRoutes(t *testing.T) {
	m := NewManager(testConfig(), nil, nil, nil)
	meta := modular.ModuleMetadata{ID: "x", APIEndpoints: []string{"/status", "post /jobs"}}
	require.NoError(t, m.RegisterModule(context.Background(), "x", "x", StubRoutes(meta)))

	assert.Equal(t, http.StatusNotImplemented, serve(t, m, http.MethodGet, "/api/v1/modules/x/status").Code)
	assert.Equal(t, http.StatusNotImplemented, serve(t, m, http.MethodPost, "/api/v1/modules/x/jobs").Code)
	owner, found := m.Detector().Owner("/jobs", "post")
	assert.True(t, found)
	assert.Equal(t, "x", owner)
}

type routedModule struct{}

func (routedModule) Metadata() modular.ModuleMetadata { return modular.ModuleMetadata{ID: "r"} }
func (routedModule) RegisterRoutes(r modular.RouteRegistrar) {
	r.HandleFunc("get", "/a", func(http.ResponseWriter, *http.Request) {})
	r.Handle(http.MethodDelete, "/a", ok(""))
}
func (routedModule) HealthCheck(context.Context) error { return nil }

func TestCollectRoutes(t *testing.T) {
	routes := CollectRoutes(routedModule{})
	require.Len(t, routes, 2)
	assert.Equal(t, []string{http.MethodGet}, routes[0].Methods)
	assert.Equal(t, []string{http.MethodDelete}, routes[1].Methods)
}

func TestConflictDetector_SameOwner(t *testing.T) {
	d := NewConflictDetector()
	require.NoError(t, d.Reserve("x", "x", []RegisteredRoute{{PathPattern: "/test", Methods: []string{"GET", "POST"}}}))

	_, conflict := d.CheckConflict("/test", []string{"GET"}, "x", "x")
	assert.False(t, conflict)
	msg, conflict := d.CheckConflict("/test", []string{"PUT", "POST"}, "y", "y")
	assert.True(t, conflict)
	assert.Equal(t, "POST /test is already registered by module x", msg)

	assert.Len(t, d.Release("x"), 1)
	_, conflict = d.CheckConflict("/test", []string{"POST"}, "y", "y")
	assert.False(t, conflict)
}
