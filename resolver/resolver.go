// Package resolver resolves a candidate module's dependencies against the
// set of registered modules and computes a deterministic load order.
package resolver

import (
	"fmt"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Reason strings reported in Info.Reason.
const (
	ReasonCircular   = "Circular dependency detected"
	ReasonUnresolved = "Required dependencies unresolved"
)

// MissingDependency describes one unsatisfied required dependency.
type MissingDependency struct {
	ModuleID           string `json:"module_id"`
	VersionRequirement string `json:"version_requirement"`
	// FoundVersion is empty when the module is not registered at all.
	FoundVersion string `json:"found_version,omitempty"`
}

func (m MissingDependency) String() string {
	if m.FoundVersion == "" {
		return fmt.Sprintf("%s (%s): not registered", m.ModuleID, m.VersionRequirement)
	}
	return fmt.Sprintf("%s (%s): found %s", m.ModuleID, m.VersionRequirement, m.FoundVersion)
}

// Info is the outcome of a resolution.
type Info struct {
	Graph               map[string][]string `json:"graph"`
	LoadOrder           []string            `json:"load_order,omitempty"`
	MissingDependencies []MissingDependency `json:"missing_dependencies,omitempty"`
	Cycle               []string            `json:"cycle,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	Reason              string              `json:"reason,omitempty"`
	CacheHit            bool                `json:"cache_hit"`
}

// Err converts an unresolvable outcome to a taxonomy error.
func (i *Info) Err() error {
	switch {
	case len(i.Cycle) > 0:
		return fmt.Errorf("%w: %s", modular.ErrCircularDependency, strings.Join(i.Cycle, " -> "))
	case len(i.MissingDependencies) > 0:
		parts := make([]string, 0, len(i.MissingDependencies))
		for _, m := range i.MissingDependencies {
			parts = append(parts, m.String())
		}
		return fmt.Errorf("%w: %s", modular.ErrDependencyUnresolved, strings.Join(parts, "; "))
	case i.Reason != "":
		return fmt.Errorf("%w: %s", modular.ErrDependencyUnresolved, i.Reason)
	default:
		return nil
	}
}

// DependencyResolver builds dependency graphs and caches load orders.
type DependencyResolver struct {
	cache  *lru.Cache
	logger modular.Logger
}

// New creates a resolver whose load-order cache holds cacheSize entries.
func New(cacheSize int, logger modular.Logger) (*DependencyResolver, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create load order cache: %w", err)
	}
	if logger == nil {
		logger = modular.NopLogger{}
	}
	return &DependencyResolver{cache: cache, logger: logger}, nil
}

// BuildGraph walks declared dependencies from target through every
// reachable module in available. Dependencies that are not available are
// left out of the graph; Resolve reports them separately.
func BuildGraph(target modular.ModuleMetadata, available map[string]modular.ModuleMetadata) *Graph {
	g := NewGraph()
	g.AddNode(target.ID)

	seen := map[string]bool{target.ID: true}
	var walk func(m modular.ModuleMetadata)
	walk = func(m modular.ModuleMetadata) {
		for _, dep := range m.Dependencies {
			next, ok := available[dep.ModuleID]
			if dep.ModuleID == target.ID {
				next, ok = target, true
			}
			if !ok {
				continue
			}
			g.AddEdge(m.ID, dep.ModuleID)
			if !seen[dep.ModuleID] {
				seen[dep.ModuleID] = true
				walk(next)
			}
		}
	}
	walk(target)
	return g
}

// Resolve reports whether target's dependencies can be satisfied by
// available and, if so, the order in which the graph must load.
func (r *DependencyResolver) Resolve(target modular.ModuleMetadata, available map[string]modular.ModuleMetadata) (bool, *Info) {
	g := BuildGraph(target, available)
	info := &Info{Graph: g.Adjacency()}

	if cycle := g.FindCycle(); cycle != nil {
		info.Cycle = cycle
		info.Reason = ReasonCircular
		return false, info
	}

	resolvable := true
	for _, dep := range target.Dependencies {
		ok, found, err := satisfied(dep, available)
		if err != nil {
			info.Warnings = append(info.Warnings, fmt.Sprintf("dependency %s: %v", dep.ModuleID, err))
		}
		if ok {
			continue
		}
		if dep.Required {
			resolvable = false
			info.MissingDependencies = append(info.MissingDependencies, MissingDependency{
				ModuleID:           dep.ModuleID,
				VersionRequirement: dep.VersionRequirement,
				FoundVersion:       found,
			})
		} else {
			info.Warnings = append(info.Warnings, fmt.Sprintf("optional dependency %s (%s) not satisfied", dep.ModuleID, dep.VersionRequirement))
		}
	}
	if !resolvable {
		info.Reason = ReasonUnresolved
		return false, info
	}

	key := g.Hash()
	if cached, ok := r.cache.Get(key); ok {
		info.LoadOrder = slices.Clone(cached.([]string))
		info.CacheHit = true
		r.logger.Debug("Load order cache hit", "module", target.ID)
		return true, info
	}

	order, err := g.LoadOrder()
	if err != nil {
		info.Reason = err.Error()
		return false, info
	}
	r.cache.Add(key, slices.Clone(order))
	info.LoadOrder = order
	return true, info
}

func satisfied(dep modular.ModuleDependency, available map[string]modular.ModuleMetadata) (bool, string, error) {
	m, ok := available[dep.ModuleID]
	if !ok {
		return false, "", nil
	}
	ok, err := Satisfies(m.Version, dep.VersionRequirement)
	return ok, m.Version, err
}

// CacheLen returns the number of cached load orders.
func (r *DependencyResolver) CacheLen() int {
	return r.cache.Len()
}

// Purge empties the load order cache.
func (r *DependencyResolver) Purge() {
	r.cache.Purge()
}

// Dependents returns the ids of modules that declare a dependency on id, sorted.
func Dependents(id string, modules map[string]modular.ModuleMetadata) []string {
	var out []string
	for mid, m := range modules {
		if mid != id && m.DependsOn(id) {
			out = append(out, mid)
		}
	}
	slices.Sort(out)
	return out
}

// RequiredDependents is like Dependents but only counts required dependencies.
func RequiredDependents(id string, modules map[string]modular.ModuleMetadata) []string {
	var out []string
	for mid, m := range modules {
		if mid == id {
			continue
		}
		for _, dep := range m.Dependencies {
			if dep.ModuleID == id && dep.Required {
				out = append(out, mid)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}
