// Package modular is the core of the module registration and routing engine.
// It defines the metadata that describes a feature module, the capability
// interface every loaded module implements, the shared error taxonomy,
// lifecycle states, CloudEvents plumbing and configuration.
//
// Feature modules are registered at runtime through registry.ModuleRegistry,
// which validates them, resolves their dependencies, mounts their routes under
// a conflict-free namespace and monitors their health:
//
//	reg, _ := registry.New(cfg.Registry, registry.WithLogger(logger))
//	reqID, _ := reg.RegisterModule(ctx, metadata, "user-42")
//	result, _ := reg.WaitForRequest(ctx, reqID)
package modular

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// ModuleType categorizes a feature module.
type ModuleType string

const (
	ModuleTypeCore        ModuleType = "core"
	ModuleTypeAnalytics   ModuleType = "analytics"
	ModuleTypeIntegration ModuleType = "integration"
	ModuleTypeUI          ModuleType = "ui"
	ModuleTypeUtility     ModuleType = "utility"
)

// KnownModuleTypes lists the module types the platform understands.
var KnownModuleTypes = []ModuleType{
	ModuleTypeCore,
	ModuleTypeAnalytics,
	ModuleTypeIntegration,
	ModuleTypeUI,
	ModuleTypeUtility,
}

// AnyVersion is the version requirement satisfied by every version.
const AnyVersion = "*"

// ModuleDependency declares that a module needs another module.
type ModuleDependency struct {
	// ModuleID is the id of the module depended upon.
	ModuleID string `json:"module_id" yaml:"module_id" toml:"module_id"`

	// VersionRequirement is either "*" or a constraint such as ">=1.2.0" or "^2.0.0".
	VersionRequirement string `json:"version_requirement" yaml:"version_requirement" toml:"version_requirement"`

	// Required dependencies block registration when unsatisfied; optional
	// ones only produce warnings.
	Required bool `json:"required" yaml:"required" toml:"required"`
}

// ModuleMetadata describes a feature module. It is immutable once a
// registration succeeds; the registry only ever hands out copies.
type ModuleMetadata struct {
	ID                  string             `json:"id" yaml:"id" toml:"id"`
	Name                string             `json:"name" yaml:"name" toml:"name"`
	Description         string             `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Version             string             `json:"version" yaml:"version" toml:"version"`
	Type                ModuleType         `json:"module_type" yaml:"module_type" toml:"module_type"`
	Namespace           string             `json:"namespace,omitempty" yaml:"namespace,omitempty" toml:"namespace,omitempty"`
	Dependencies        []ModuleDependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	RequiredPermissions []string           `json:"required_permissions,omitempty" yaml:"required_permissions,omitempty" toml:"required_permissions,omitempty"`
	ConfigSchema        map[string]any     `json:"config_schema,omitempty" yaml:"config_schema,omitempty" toml:"config_schema,omitempty"`
	DefaultConfig       map[string]any     `json:"default_config,omitempty" yaml:"default_config,omitempty" toml:"default_config,omitempty"`
	EntryPoint          string             `json:"entry_point,omitempty" yaml:"entry_point,omitempty" toml:"entry_point,omitempty"`
	APIEndpoints        []string           `json:"api_endpoints,omitempty" yaml:"api_endpoints,omitempty" toml:"api_endpoints,omitempty"`
	FrontendComponents  []string           `json:"frontend_components,omitempty" yaml:"frontend_components,omitempty" toml:"frontend_components,omitempty"`
	Tags                []string           `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`

	// SourceFiles lists Go source files shipped with the module. When present
	// they are statically scanned before registration.
	SourceFiles []string `json:"source_files,omitempty" yaml:"source_files,omitempty" toml:"source_files,omitempty"`

	// Signature is the hex HMAC over the canonical form of the fields above.
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty" toml:"signature,omitempty"`
}

// EffectiveNamespace returns the URL segment the module's routes live under.
func (m ModuleMetadata) EffectiveNamespace() string {
	if m.Namespace != "" {
		return m.Namespace
	}
	return m.ID
}

// DependencyIDs returns the ids of all declared dependencies in declaration order.
func (m ModuleMetadata) DependencyIDs() []string {
	ids := make([]string, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		ids = append(ids, dep.ModuleID)
	}
	return ids
}

// DependsOn reports whether the module declares a dependency on id.
func (m ModuleMetadata) DependsOn(id string) bool {
	return slices.Contains(m.DependencyIDs(), id)
}

// Clone returns a deep copy so callers cannot mutate registered metadata.
func (m ModuleMetadata) Clone() ModuleMetadata {
	c := m
	c.Dependencies = slices.Clone(m.Dependencies)
	c.RequiredPermissions = slices.Clone(m.RequiredPermissions)
	c.APIEndpoints = slices.Clone(m.APIEndpoints)
	c.FrontendComponents = slices.Clone(m.FrontendComponents)
	c.Tags = slices.Clone(m.Tags)
	c.SourceFiles = slices.Clone(m.SourceFiles)
	c.ConfigSchema = cloneMap(m.ConfigSchema)
	c.DefaultConfig = cloneMap(m.DefaultConfig)
	return c
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case map[string]any:
			out[k] = cloneMap(tv)
		case []any:
			out[k] = slices.Clone(tv)
		default:
			out[k] = v
		}
	}
	return out
}

// Endpoint is a parsed api endpoint declaration.
type Endpoint struct {
	Method string
	Path   string
}

// HTTPMethods lists the methods accepted in endpoint declarations.
var HTTPMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

// ParseEndpoint parses "GET /path" or "/path" (GET implied).
func ParseEndpoint(decl string) Endpoint {
	decl = strings.TrimSpace(decl)
	method, path, found := strings.Cut(decl, " ")
	if !found {
		return Endpoint{Method: http.MethodGet, Path: decl}
	}
	return Endpoint{Method: strings.ToUpper(method), Path: strings.TrimSpace(path)}
}

// RouteRegistrar is handed to Module.RegisterRoutes. Patterns are relative to
// the module namespace and use chi syntax ("/items/{id}").
type RouteRegistrar interface {
	Handle(method, pattern string, handler http.Handler)
	HandleFunc(method, pattern string, handler http.HandlerFunc)
}

// Module is the capability interface implemented by every loaded feature
// module. The registry depends only on this interface.
type Module interface {
	// Metadata describes the module. It must be stable for the module's lifetime.
	Metadata() ModuleMetadata

	// RegisterRoutes declares the module's HTTP surface.
	RegisterRoutes(r RouteRegistrar)

	// HealthCheck returns nil when the module is able to serve requests.
	HealthCheck(ctx context.Context) error
}

// Factory constructs a module from its default configuration. Factories are
// keyed by entry point in the registry's loader.
type Factory func(config map[string]any) (Module, error)

// MergeConfig overlays override on top of defaults without mutating either.
func MergeConfig(defaults, override map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(override))
	maps.Copy(out, defaults)
	maps.Copy(out, override)
	return out
}
