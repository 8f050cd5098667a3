// Package feeders provides configuration feeders for YAML files, TOML files
// and environment variables.
package feeders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file into a struct using its yaml tags.
type YamlFeeder struct {
	Path string

	// Optional makes a missing file a no-op instead of an error.
	Optional bool
}

// NewYamlFeeder creates a YamlFeeder for path.
func NewYamlFeeder(path string) YamlFeeder {
	return YamlFeeder{Path: path}
}

// Feed decodes the file over structure, leaving absent keys untouched.
func (y YamlFeeder) Feed(structure any) error {
	if !isStructPtr(structure) {
		return ErrInvalidStructure
	}
	data, err := os.ReadFile(y.Path)
	if err != nil {
		if y.Optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w %s: %w", ErrFileRead, y.Path, err)
	}
	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDecode, y.Path, err)
	}
	return nil
}

// FeedKey decodes only the top-level key into target.
func (y YamlFeeder) FeedKey(key string, target any) error {
	var all map[string]yaml.Node
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrFileRead, y.Path, err)
	}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDecode, y.Path, err)
	}
	node, ok := all[key]
	if !ok {
		return nil
	}
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("%w %s[%s]: %w", ErrDecode, y.Path, key, err)
	}
	return nil
}

func isStructPtr(v any) bool {
	t := reflect.TypeOf(v)
	return t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct
}
