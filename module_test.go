package modular

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		decl   string
		method string
		path   string
	}{
		{"/test", http.MethodGet, "/test"},
		{"POST /test", http.MethodPost, "/test"},
		{"delete   /items/{id}", http.MethodDelete, "/items/{id}"},
		{"  /padded  ", http.MethodGet, "/padded"},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			ep := ParseEndpoint(tt.decl)
			assert.Equal(t, tt.method, ep.Method)
			assert.Equal(t, tt.path, ep.Path)
		})
	}
}

func TestModuleMetadata_Clone(t *testing.T) {
	orig := ModuleMetadata{
		ID:           "analytics_core",
		Dependencies: []ModuleDependency{{ModuleID: "base", VersionRequirement: "*", Required: true}},
		APIEndpoints: []string{"/a"},
		ConfigSchema: map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "string"}}},
	}

	c := orig.Clone()
	c.Dependencies[0].ModuleID = "changed"
	c.APIEndpoints[0] = "/b"
	c.ConfigSchema["properties"].(map[string]any)["y"] = true

	assert.Equal(t, "base", orig.Dependencies[0].ModuleID)
	assert.Equal(t, "/a", orig.APIEndpoints[0])
	assert.NotContains(t, orig.ConfigSchema["properties"], "y")
}

func TestModuleMetadata_Helpers(t *testing.T) {
	m := ModuleMetadata{ID: "reports", Dependencies: []ModuleDependency{{ModuleID: "a"}, {ModuleID: "b"}}}
	assert.Equal(t, "reports", m.EffectiveNamespace())
	m.Namespace = "rpt"
	assert.Equal(t, "rpt", m.EffectiveNamespace())
	assert.Equal(t, []string{"a", "b"}, m.DependencyIDs())
	assert.True(t, m.DependsOn("b"))
	assert.False(t, m.DependsOn("c"))
}

func TestMergeConfig(t *testing.T) {
	defaults := map[string]any{"a": 1, "b": 2}
	merged := MergeConfig(defaults, map[string]any{"b": 3})
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, merged)
	assert.Equal(t, 2, defaults["b"])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		kind   ErrorKind
		status int
	}{
		{nil, ErrorKindNone, http.StatusOK},
		{fmt.Errorf("rule failed: %w", ErrValidationFailed), ErrorKindValidation, http.StatusUnprocessableEntity},
		{ErrSignatureMismatch, ErrorKindValidation, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", ErrDuplicateModule), ErrorKindDuplicate, http.StatusConflict},
		{ErrCircularDependency, ErrorKindDependency, http.StatusConflict},
		{ErrRouteConflict, ErrorKindConflict, http.StatusConflict},
		{ErrPersistenceFailure, ErrorKindPersistence, http.StatusInternalServerError},
		{ErrModuleNotFound, ErrorKindNotFound, http.StatusNotFound},
		{ErrRegistryStopped, ErrorKindUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("alpha: %w", ErrModuleBusy), ErrorKindUnavailable, http.StatusServiceUnavailable},
		{ErrMemoryLimitExceeded, ErrorKindUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), ErrorKindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		kind := ClassifyError(tt.err)
		assert.Equal(t, tt.kind, kind, "%v", tt.err)
		assert.Equal(t, tt.status, kind.HTTPStatus())
	}
}

func TestAggregateHealth(t *testing.T) {
	pass := CheckResult{Passed: true, Severity: SeverityError}

	require.Equal(t, HealthStatusHealthy, AggregateHealth(map[string]CheckResult{"a": pass, "b": pass}))

	degraded := map[string]CheckResult{
		"a": pass,
		"b": {Passed: false, Severity: SeverityWarning},
		"c": {Passed: false, Severity: SeverityInfo},
	}
	assert.Equal(t, HealthStatusDegraded, AggregateHealth(degraded))

	unhealthy := map[string]CheckResult{
		"a": pass,
		"b": {Passed: false, Severity: SeverityWarning},
		"c": {Passed: false, Severity: SeverityError},
	}
	assert.Equal(t, HealthStatusUnhealthy, AggregateHealth(unhealthy))
}

func TestHealthStatus_Text(t *testing.T) {
	for _, s := range []HealthStatus{HealthStatusUnknown, HealthStatusHealthy, HealthStatusDegraded, HealthStatusUnhealthy} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back HealthStatus
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	var s HealthStatus
	assert.Error(t, s.UnmarshalText([]byte("sick")))
}

func TestRequestStateTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StateValidating))
	assert.True(t, CanTransition(StateValidating, StateRegistered))
	assert.True(t, CanTransition(StateValidating, StateFailed))
	assert.True(t, CanTransition(StateRegistered, StateDeregistering))
	assert.False(t, CanTransition(StateFailed, StateRegistered))
	assert.False(t, CanTransition(StatePending, StateRegistered))
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateValidating.IsTerminal())
}
