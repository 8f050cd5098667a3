package validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

const schemaResource = "mem://module/config_schema.json"

// Schema is a compiled module configuration schema.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a config_schema map as a JSON Schema document.
func CompileSchema(doc map[string]any) (*Schema, error) {
	normalized, err := normalizeJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", modular.ErrInvalidSchema, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", modular.ErrInvalidSchema, err)
	}
	s, err := c.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", modular.ErrInvalidSchema, err)
	}
	return &Schema{schema: s}, nil
}

// Validate checks a configuration value against the schema.
func (s *Schema) Validate(config map[string]any) error {
	normalized, err := normalizeJSON(config)
	if err != nil {
		return err
	}
	if err := s.schema.Validate(normalized); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateConfig compiles schema and validates config against it. A nil
// schema accepts everything.
func ValidateConfig(schema, config map[string]any) error {
	if schema == nil {
		return nil
	}
	s, err := CompileSchema(schema)
	if err != nil {
		return err
	}
	if config == nil {
		config = map[string]any{}
	}
	return s.Validate(config)
}

// normalizeJSON converts arbitrary Go values (for example maps decoded from
// YAML) into the plain JSON value types the schema library expects.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("not representable as JSON: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
