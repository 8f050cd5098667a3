package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// DefaultEnvPrefix is the prefix used by the modhub binary.
const DefaultEnvPrefix = "MODHUB"

var durationType = reflect.TypeOf(time.Duration(0))

// EnvFeeder sets struct fields from environment variables. The variable name
// is built from the prefix, the yaml name of every enclosing struct field and
// the field's env tag: MODHUB_REGISTRY_MAX_REGISTERED_MODULES.
type EnvFeeder struct {
	Prefix string

	// Lookup replaces os.LookupEnv, mainly for tests.
	Lookup func(string) (string, bool)
}

// NewEnvFeeder creates an EnvFeeder with the given prefix.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix}
}

// Feed implements modular.Feeder.
func (f EnvFeeder) Feed(structure any) error {
	if !isStructPtr(structure) {
		return ErrInvalidStructure
	}
	lookup := f.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return f.fillStruct(reflect.ValueOf(structure).Elem(), strings.ToUpper(f.Prefix), lookup)
}

func (f EnvFeeder) fillStruct(rv reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			segment, _, _ := strings.Cut(fieldType.Tag.Get("yaml"), ",")
			if segment == "" || segment == "-" {
				segment = fieldType.Name
			}
			if err := f.fillStruct(field, join(prefix, strings.ToUpper(segment)), lookup); err != nil {
				return err
			}
			continue
		}

		envTag, ok := fieldType.Tag.Lookup("env")
		if !ok || envTag == "" {
			continue
		}
		name := join(prefix, strings.ToUpper(envTag))
		raw, present := lookup(name)
		if !present || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%w %s: %w", ErrEnvConversion, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(field.Type().Elem()))
			}
		}
		field.Set(out)
		return nil
	}
	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return err
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}
