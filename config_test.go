package modular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.Registry.MaxRegisteredModules)
	assert.Equal(t, 50, cfg.Registry.MaxPendingRegistrations)
	assert.Equal(t, 200, cfg.Registry.HistoryLimit)
	assert.Equal(t, 5*time.Minute, cfg.Registry.HealthInterval)
	assert.Equal(t, time.Hour, cfg.Registry.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.Registry.PendingMaxAge)
	assert.Equal(t, 10*time.Minute, cfg.Registry.MemoryInterval)
	assert.Equal(t, 5*time.Minute, cfg.Registry.MetricsRotationInterval)
	assert.Equal(t, 30*time.Second, cfg.Registry.ShutdownTimeout)
	assert.True(t, cfg.Registry.AutoActivate)
	assert.Equal(t, 256, cfg.Resolver.CacheSize)
	assert.Equal(t, int64(10000), cfg.Routing.MaxCallCount)
	assert.Equal(t, time.Hour, cfg.Routing.MaxAge)
	assert.Equal(t, 1000, cfg.Routing.MaxMetrics)
	assert.Equal(t, 1, cfg.Routing.APIVersion)
	assert.Equal(t, 5*time.Second, cfg.Health.ProbeTimeout)
	assert.Equal(t, 8, cfg.Health.Concurrency)
	assert.Equal(t, "memory", cfg.Store.Driver)
	require.NoError(t, cfg.Validate())
}

func TestProcessConfigDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Registry.MaxRegisteredModules = 7
	cfg.Log.Format = "json"

	require.NoError(t, ProcessConfigDefaults(cfg))
	assert.Equal(t, 7, cfg.Registry.MaxRegisteredModules)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Registry.MaxPendingRegistrations)
}

func TestProcessConfigDefaults_Errors(t *testing.T) {
	assert.ErrorIs(t, ProcessConfigDefaults(nil), ErrConfigNil)
	assert.ErrorIs(t, ProcessConfigDefaults(Config{}), ErrConfigNotPointer)
	n := 3
	assert.ErrorIs(t, ProcessConfigDefaults(&n), ErrConfigNotStruct)

	type bad struct {
		Wait time.Duration `default:"soon"`
	}
	assert.ErrorIs(t, ProcessConfigDefaults(&bad{}), ErrDefaultValueParseError)
}

func TestProcessConfigDefaults_SlicesAndMaps(t *testing.T) {
	type withCollections struct {
		Origins []string          `default:"[\"a\",\"b\"]"`
		Labels  map[string]string `default:"{\"tier\":\"gold\"}"`
		Ratio   float64           `default:"0.5"`
	}
	cfg := &withCollections{}
	require.NoError(t, ProcessConfigDefaults(cfg))
	assert.Equal(t, []string{"a", "b"}, cfg.Origins)
	assert.Equal(t, "gold", cfg.Labels["tier"])
	assert.InDelta(t, 0.5, cfg.Ratio, 1e-9)
}

func TestValidateConfigRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Addr = ""

	err := ValidateConfigRequired(cfg)
	require.ErrorIs(t, err, ErrConfigRequiredFieldMissing)
	assert.Contains(t, err.Error(), "Server.Addr")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Registry.MaxRegisteredModules = 0 }},
		{"zero pending", func(c *Config) { c.Registry.MaxPendingRegistrations = 0 }},
		{"zero interval", func(c *Config) { c.Registry.HealthInterval = 0 }},
		{"bad api version", func(c *Config) { c.Routing.APIVersion = 0 }},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"signature without secret", func(c *Config) { c.Validator.RequireSignature = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfigValidationFailed)
		})
	}
}

type sliceFeeder struct{ max int }

func (f sliceFeeder) Feed(structure any) error {
	structure.(*Config).Registry.MaxRegisteredModules = f.max
	return nil
}

func TestLoadConfig_FeedersOverrideDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, LoadConfig(cfg, sliceFeeder{max: 3}, sliceFeeder{max: 9}))
	assert.Equal(t, 9, cfg.Registry.MaxRegisteredModules)
	assert.Equal(t, 50, cfg.Registry.MaxPendingRegistrations)

	err := LoadConfig(&Config{}, sliceFeeder{max: -1})
	assert.ErrorIs(t, err, ErrConfigValidationFailed)
}

func TestGenerateSampleConfig(t *testing.T) {
	for _, format := range []string{"yaml", "json", "toml"} {
		t.Run(format, func(t *testing.T) {
			data, err := GenerateSampleConfig(&Config{}, format)
			require.NoError(t, err)
			assert.Contains(t, string(data), "max_registered_modules")
		})
	}

	_, err := GenerateSampleConfig(&Config{}, "ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormatType)
}

func TestSaveSampleConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "modhub.yaml")
	require.NoError(t, SaveSampleConfig(&Config{}, "yaml", yamlPath))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML Config
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, *DefaultConfig(), fromYAML)

	tomlPath := filepath.Join(dir, "modhub.toml")
	require.NoError(t, SaveSampleConfig(&Config{}, "toml", tomlPath))
	var fromTOML Config
	_, err = toml.DecodeFile(tomlPath, &fromTOML)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Registry, fromTOML.Registry)
}

func TestDescribeConfig(t *testing.T) {
	lines := DescribeConfig(&Config{})
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "registry.max_registered_modules: Upper bound on registered modules")
	assert.Contains(t, joined, "store.driver: memory or sqlite")
}
