package validator

import (
	"regexp"
	"slices"
	"strings"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

var (
	moduleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	versionPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
)

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc{"required_fields", checkRequiredFields},
		RuleFunc{"module_id_format", checkModuleID},
		RuleFunc{"version_format", checkVersion},
		RuleFunc{"entry_point", checkEntryPoint},
		RuleFunc{"self_dependency", checkSelfDependency},
		RuleFunc{"config_schema", checkConfigSchema},
		RuleFunc{"api_endpoints", checkEndpoints},
		RuleFunc{"permissions", checkPermissions},
		RuleFunc{"module_type", checkModuleType},
	}
}

func checkRequiredFields(m modular.ModuleMetadata, r *RuleResult) {
	if m.ID == "" {
		r.fail("id is required")
	}
	if m.Name == "" {
		r.fail("name is required")
	}
	if m.Version == "" {
		r.fail("version is required")
	}
	if m.Type == "" {
		r.fail("module_type is required")
	}
}

func checkModuleID(m modular.ModuleMetadata, r *RuleResult) {
	if m.ID != "" && !moduleIDPattern.MatchString(m.ID) {
		r.fail("id %q must match %s", m.ID, moduleIDPattern)
	}
}

func checkVersion(m modular.ModuleMetadata, r *RuleResult) {
	if m.Version != "" && !versionPattern.MatchString(m.Version) {
		r.fail("version %q is not a semantic version", m.Version)
	}
}

func checkEntryPoint(m modular.ModuleMetadata, r *RuleResult) {
	if strings.TrimSpace(m.EntryPoint) == "" {
		r.warn("entry_point is empty; module will be registered without an instance")
	}
}

func checkSelfDependency(m modular.ModuleMetadata, r *RuleResult) {
	for _, dep := range m.Dependencies {
		if dep.ModuleID == "" {
			r.fail("dependency with empty module_id")
			continue
		}
		if dep.ModuleID == m.ID {
			r.fail("module %q cannot depend on itself", m.ID)
		}
	}
}

func checkConfigSchema(m modular.ModuleMetadata, r *RuleResult) {
	if m.ConfigSchema == nil {
		if len(m.DefaultConfig) > 0 {
			r.warn("default_config given without config_schema")
		}
		return
	}
	schema, err := CompileSchema(m.ConfigSchema)
	if err != nil {
		r.fail("config_schema: %v", err)
		return
	}
	if m.DefaultConfig != nil {
		if err := schema.Validate(m.DefaultConfig); err != nil {
			r.fail("default_config does not satisfy config_schema: %v", err)
		}
	}
}

func checkEndpoints(m modular.ModuleMetadata, r *RuleResult) {
	for i, decl := range m.APIEndpoints {
		if strings.TrimSpace(decl) == "" {
			r.fail("api_endpoints[%d] is empty", i)
			continue
		}
		ep := modular.ParseEndpoint(decl)
		if !slices.Contains(modular.HTTPMethods, ep.Method) {
			r.fail("api_endpoints[%d] %q: unknown method %s", i, decl, ep.Method)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			r.fail("api_endpoints[%d] %q: path must start with /", i, decl)
		}
	}
}

func checkPermissions(m modular.ModuleMetadata, r *RuleResult) {
	for i, p := range m.RequiredPermissions {
		if strings.TrimSpace(p) == "" {
			r.fail("required_permissions[%d] is empty", i)
		}
	}
}

func checkModuleType(m modular.ModuleMetadata, r *RuleResult) {
	if m.Type != "" && !slices.Contains(modular.KnownModuleTypes, m.Type) {
		r.warn("unknown module_type %q", m.Type)
	}
}
