package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

func validMetadata() modular.ModuleMetadata {
	return modular.ModuleMetadata{
		ID:           "analytics_core",
		Name:         "Analytics Core",
		Version:      "1.2.0",
		Type:         modular.ModuleTypeAnalytics,
		EntryPoint:   "analytics.core",
		APIEndpoints: []string{"/reports", "POST /reports"},
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []any{"window"},
			"properties": map[string]any{
				"window": map[string]any{"type": "integer", "minimum": 1},
			},
		},
		DefaultConfig:       map[string]any{"window": 7},
		RequiredPermissions: []string{"reports:read"},
	}
}

func TestValidate_Valid(t *testing.T) {
	valid, res := New().Validate(context.Background(), validMetadata())
	require.True(t, valid, res.Errors)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())
	assert.Len(t, res.Rules, len(DefaultRules())+1)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*modular.ModuleMetadata)
		rule   string
	}{
		{"missing name", func(m *modular.ModuleMetadata) { m.Name = "" }, "required_fields"},
		{"missing type", func(m *modular.ModuleMetadata) { m.Type = "" }, "required_fields"},
		{"uppercase id", func(m *modular.ModuleMetadata) { m.ID = "Analytics" }, "module_id_format"},
		{"id starts with digit", func(m *modular.ModuleMetadata) { m.ID = "1core" }, "module_id_format"},
		{"bad version", func(m *modular.ModuleMetadata) { m.Version = "1.2" }, "version_format"},
		{"self dependency", func(m *modular.ModuleMetadata) {
			m.Dependencies = []modular.ModuleDependency{{ModuleID: m.ID, VersionRequirement: "*", Required: true}}
		}, "self_dependency"},
		{"invalid schema", func(m *modular.ModuleMetadata) { m.ConfigSchema = map[string]any{"type": 5} }, "config_schema"},
		{"default config violates schema", func(m *modular.ModuleMetadata) { m.DefaultConfig = map[string]any{"window": 0} }, "config_schema"},
		{"endpoint without slash", func(m *modular.ModuleMetadata) { m.APIEndpoints = []string{"reports"} }, "api_endpoints"},
		{"empty endpoint", func(m *modular.ModuleMetadata) { m.APIEndpoints = []string{" "} }, "api_endpoints"},
		{"unknown method", func(m *modular.ModuleMetadata) { m.APIEndpoints = []string{"FETCH /x"} }, "api_endpoints"},
		{"empty permission", func(m *modular.ModuleMetadata) { m.RequiredPermissions = []string{""} }, "permissions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetadata()
			tt.mutate(&m)
			valid, res := New().Validate(context.Background(), m)
			require.False(t, valid)
			assert.ErrorIs(t, res.Err(), modular.ErrValidationFailed)

			var failed []string
			for _, r := range res.Rules {
				if !r.Valid {
					failed = append(failed, r.Rule)
				}
			}
			assert.Contains(t, failed, tt.rule)
		})
	}
}

func TestValidate_RulesAreIndependent(t *testing.T) {
	m := validMetadata()
	m.ID = "Bad-ID"
	m.Version = "x"
	m.APIEndpoints = []string{"nope"}

	_, res := New().Validate(context.Background(), m)
	assert.Len(t, res.Errors, 3)
}

func TestValidate_Warnings(t *testing.T) {
	m := validMetadata()
	m.EntryPoint = ""
	m.Type = "widget"

	valid, res := New().Validate(context.Background(), m)
	assert.True(t, valid)
	assert.Len(t, res.Warnings, 2)
}

func TestValidate_Signature(t *testing.T) {
	signer := NewSigner([]byte("s3cret"))
	m := validMetadata()
	sig, err := signer.Sign(m)
	require.NoError(t, err)
	m.Signature = sig

	v := New(WithSigner(signer, true))
	valid, res := v.Validate(context.Background(), m)
	require.True(t, valid, res.Errors)

	tampered := m.Clone()
	tampered.APIEndpoints = append(tampered.APIEndpoints, "DELETE /everything")
	valid, res = v.Validate(context.Background(), tampered)
	require.False(t, valid)
	assert.ErrorIs(t, res.Err(), modular.ErrSignatureMismatch)

	unsigned := validMetadata()
	valid, res = v.Validate(context.Background(), unsigned)
	require.False(t, valid)
	assert.ErrorIs(t, res.Err(), modular.ErrSignatureMissing)

	valid, res = New(WithSigner(signer, false)).Validate(context.Background(), unsigned)
	assert.True(t, valid)
	assert.NotEmpty(t, res.Warnings)

	garbage := m.Clone()
	garbage.Signature = "not-hex"
	valid, _ = v.Validate(context.Background(), garbage)
	assert.False(t, valid)
}

func TestSigner_CanonicalIgnoresSignatureAndMapOrder(t *testing.T) {
	a := validMetadata()
	b := validMetadata()
	b.Signature = "abc"
	b.DefaultConfig = map[string]any{"window": 7}

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestValidate_CodeScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.go"), []byte("package m\n\nimport \"strings\"\n\nfunc F() string { return strings.ToUpper(\"x\") }\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("package m\n\nimport \"os/exec\"\n\nfunc F() { _ = exec.Command(\"rm\") }\n"), 0o600))

	v := New(WithScanner(NewCodeScanner(dir, ScanOptions{})))

	m := validMetadata()
	m.SourceFiles = []string{"ok.go"}
	valid, res := v.Validate(context.Background(), m)
	assert.True(t, valid, res.Errors)

	m.SourceFiles = []string{"ok.go", "bad.go"}
	valid, res = v.Validate(context.Background(), m)
	require.False(t, valid)
	assert.ErrorIs(t, res.Err(), modular.ErrUnsafeCode)
	assert.Len(t, res.Errors, 2)
}

func TestFromConfig(t *testing.T) {
	cfg := modular.ValidatorConfig{SigningSecret: "k", RequireSignature: true, SourceRoot: t.TempDir()}
	v := FromConfig(cfg, modular.NopLogger{})
	require.NotNil(t, v.signer)
	require.NotNil(t, v.scanner)
	assert.True(t, v.requireSignature)
}

func TestValidateConfig(t *testing.T) {
	schema := validMetadata().ConfigSchema
	assert.NoError(t, ValidateConfig(nil, map[string]any{"anything": true}))
	assert.NoError(t, ValidateConfig(schema, map[string]any{"window": 3}))
	assert.Error(t, ValidateConfig(schema, map[string]any{}))
	assert.ErrorIs(t, ValidateConfig(map[string]any{"type": "nonsense"}, nil), modular.ErrInvalidSchema)
}
