package modular

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
	tagDesc     = "desc"
)

// ConfigValidator is implemented by configuration structs that check
// cross-field constraints after defaults and feeders have been applied.
type ConfigValidator interface {
	Validate() error
}

var durationType = reflect.TypeOf(time.Duration(0))

// ProcessConfigDefaults sets every zero-valued field carrying a
// `default:"..."` tag. Nested structs are walked recursively.
//
//	type ServerConfig struct {
//	    Addr    string        `default:":8080"`
//	    Timeout time.Duration `default:"15s"`
//	}
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return walkLeaves(v, "", func(path string, field reflect.Value, sf reflect.StructField) error {
		raw, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !isZeroValue(field) {
			return nil
		}
		if err := setFieldFromString(field, raw); err != nil {
			return fmt.Errorf("default for %s: %w", path, err)
		}
		return nil
	})
}

// walkLeaves calls fn for every settable non-struct field below v. Durations
// count as leaves; nil struct pointers are skipped.
func walkLeaves(v reflect.Value, prefix string, fn func(path string, field reflect.Value, sf reflect.StructField) error) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}
		switch {
		case field.Kind() == reflect.Struct:
			if err := walkLeaves(field, path, fn); err != nil {
				return err
			}
		case field.Kind() == reflect.Ptr && sf.Type.Elem().Kind() == reflect.Struct:
			if field.IsNil() {
				continue
			}
			if err := walkLeaves(field.Elem(), path, fn); err != nil {
				return err
			}
		default:
			if err := fn(path, field, sf); err != nil {
				return err
			}
		}
	}
	return nil
}

// setFieldFromString converts raw into the field's type. Durations use
// time.ParseDuration, slices and maps JSON, and scalars golobby/cast.
func setFieldFromString(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDefaultValueParseError, err)
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.Slice, field.Kind() == reflect.Map:
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
			return fmt.Errorf("%w: %w", ErrDefaultValueParseError, err)
		}
		field.Set(ptr.Elem())
		return nil
	case isScalarKind(field.Kind()):
		converted, err := cast.FromType(raw, field.Type())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDefaultValueParseError, err)
		}
		field.Set(reflect.ValueOf(converted).Convert(field.Type()))
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// ValidateConfigRequired checks all fields tagged `required:"true"` are non-zero.
func ValidateConfigRequired(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}

	var missing []string
	_ = walkLeaves(v, "", func(path string, field reflect.Value, sf reflect.StructField) error {
		if sf.Tag.Get(tagRequired) == "true" && isZeroValue(field) {
			missing = append(missing, path)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	case reflect.Struct, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false
	default:
		return v.IsZero()
	}
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

// GenerateSampleConfig renders a default-filled copy of cfg as yaml, json or toml.
func GenerateSampleConfig(cfg any, format string) ([]byte, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	sample := reflect.New(reflect.TypeOf(cfg).Elem()).Interface()
	if err := ProcessConfigDefaults(sample); err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		data, err := yaml.Marshal(sample)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(sample, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
		}
		return data, nil
	case "toml":
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(sample); err != nil {
			return nil, fmt.Errorf("failed to marshal to TOML: %w", err)
		}
		return []byte(buf.String()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormatType, format)
	}
}

// SaveSampleConfig writes GenerateSampleConfig output to filePath.
func SaveSampleConfig(cfg any, format, filePath string) error {
	data, err := GenerateSampleConfig(cfg, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file to %s: %w", filePath, err)
	}
	return nil
}

// DescribeConfig lists "path: description" for every field carrying a desc tag.
func DescribeConfig(cfg any) []string {
	v, err := structValue(cfg)
	if err != nil {
		return nil
	}
	var out []string
	describeFields(v.Type(), "", &out)
	return out
}

func describeFields(t reflect.Type, prefix string, out *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct && f.Type != durationType {
			describeFields(f.Type, name, out)
			continue
		}
		if desc := f.Tag.Get(tagDesc); desc != "" {
			*out = append(*out, name+": "+desc)
		}
	}
}

// ValidateConfig applies defaults, checks required fields and then runs the
// struct's own Validate when it implements ConfigValidator.
func ValidateConfig(cfg any) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if cv, ok := cfg.(ConfigValidator); ok {
		return cv.Validate()
	}
	return nil
}
