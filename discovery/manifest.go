// Package discovery turns module manifest files into registrations. A
// manifest is a YAML, TOML or JSON document holding one module's metadata.
package discovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// ErrUnsupportedFormat is returned for files whose extension is not a
// manifest format.
var ErrUnsupportedFormat = errors.New("unsupported manifest format")

// Manifest formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// FormatOf returns the manifest format for path, or "" when the extension
// is not recognised.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}
	return ""
}

// IsManifest reports whether path has a manifest extension. Hidden files
// and editor backups are ignored.
func IsManifest(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return FormatOf(path) != ""
}

// LoadManifest reads the module metadata in path.
func LoadManifest(path string) (modular.ModuleMetadata, error) {
	format := FormatOf(path)
	if format == "" {
		return modular.ModuleMetadata{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return modular.ModuleMetadata{}, fmt.Errorf("read manifest: %w", err)
	}
	m, err := DecodeManifest(data, format)
	if err != nil {
		return modular.ModuleMetadata{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// DecodeManifest parses data in the given format. Unknown fields are
// rejected so typos in a manifest surface at load time.
func DecodeManifest(data []byte, format string) (modular.ModuleMetadata, error) {
	var m modular.ModuleMetadata
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return m, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return m, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return m, fmt.Errorf("decode toml: unknown field %s", undecoded[0])
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return m, fmt.Errorf("decode json: %w", err)
		}
	default:
		return m, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return m, nil
}

// EncodeManifest renders metadata in the given format.
func EncodeManifest(m modular.ModuleMetadata, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(m)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}
