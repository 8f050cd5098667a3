package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.ModuleRegistry) {
	t.Helper()
	cfg := modular.DefaultConfig()
	cfg.Validator.SourceRoot = ""
	reg, err := registry.New(*cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Stop(context.Background()) })
	return New(reg), reg
}

func do(t *testing.T, s http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func metadata(id string) modular.ModuleMetadata {
	return modular.ModuleMetadata{
		ID:           id,
		Name:         "Module " + id,
		Version:      "1.0.0",
		Type:         modular.ModuleTypeUtility,
		APIEndpoints: []string{"GET /items"},
		Tags:         []string{"test"},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegisterAndQuery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/admin/modules?wait=true", metadata("reports"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[registry.RegistrationResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "reports", res.ModuleID)

	rec = do(t, s, http.MethodGet, "/admin/modules/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[registry.ModuleStatusView](t, rec)
	assert.Equal(t, []string{"GET /api/v1/modules/reports/items"}, view.Routes)

	rec = do(t, s, http.MethodGet, "/admin/modules?tag=test&q=report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]registry.ModuleSummary](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/v1/modules/reports/items", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = do(t, s, http.MethodGet, "/admin/metrics/routes?module=reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, metrics, "reports:/items")

	rec = do(t, s, http.MethodGet, "/admin/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]registry.RegistrationResult](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/admin/requests/"+res.RequestID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/admin/memory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[registry.MemoryStats](t, rec).RegisteredModules)
}

func TestRegisterAsync(t *testing.T) {
	s, reg := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/admin/modules", metadata("reports"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	out := decode[registerResponse](t, rec)
	require.NotEmpty(t, out.RequestID)

	res, err := reg.WaitForRequest(context.Background(), out.RequestID)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRegisterFailuresMapToStatus(t *testing.T) {
	s, _ := newTestServer(t)

	bad := metadata("Bad")
	rec := do(t, s, http.MethodPost, "/admin/modules?wait=true", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/admin/modules?wait=true", metadata("reports")).Code)
	rec = do(t, s, http.MethodPost, "/admin/modules?wait=true", metadata("reports"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, modular.ErrorKindDuplicate, decode[registry.RegistrationResult](t, rec).Kind)

	req := httptest.NewRequest(http.MethodPost, "/admin/modules", bytes.NewBufferString(`{"id":"x","bogus":true}`))
	req.Header.Set("X-User-ID", "admin-1")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRequiresRequester(t *testing.T) {
	s, _ := newTestServer(t)
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(metadata("reports")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/modules", &buf))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnregister(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/admin/modules?wait=true", metadata("accounts")).Code)

	billing := metadata("billing")
	billing.APIEndpoints = []string{"GET /invoices"}
	billing.Dependencies = []modular.ModuleDependency{{ModuleID: "accounts", VersionRequirement: "*", Required: true}}
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/admin/modules?wait=true", billing).Code)

	rec := do(t, s, http.MethodDelete, "/admin/modules/accounts", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, modular.ErrorKindDependency, decode[errorResponse](t, rec).Kind)

	rec = do(t, s, http.MethodDelete, "/admin/modules/accounts?force=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/admin/modules/accounts", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/admin/modules/billing?force=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundAndBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/admin/modules/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/admin/requests/nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/admin/history?limit=-1", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
}

func TestHeaderAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := HeaderAuth{}.RequesterID(req)
	assert.False(t, ok)

	req.Header.Set("X-Forwarded-User", " ops ")
	id, ok := HeaderAuth{Header: "X-Forwarded-User"}.RequesterID(req)
	assert.True(t, ok)
	assert.Equal(t, "ops", id)
}
