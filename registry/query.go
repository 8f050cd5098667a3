package registry

import (
	"maps"
	"slices"
	"strings"

	"github.com/zebra-devops/MarketEdge-Platform-sub003/resolver"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/routing"
)

// GetModuleStatus returns the status of a registered module and marks it
// as recently accessed.
func (r *ModuleRegistry) GetModuleStatus(moduleID string) (ModuleStatusView, bool) {
	r.mu.Lock()
	reg, ok := r.registered[moduleID]
	if !ok {
		r.mu.Unlock()
		return ModuleStatusView{}, false
	}
	reg.Metrics.LastAccessed = r.now()
	reg.Metrics.AccessCount++

	view := ModuleStatusView{
		ModuleID:           reg.Metadata.ID,
		Name:               reg.Metadata.Name,
		Version:            reg.Metadata.Version,
		Type:               reg.Metadata.Type,
		Namespace:          reg.Metadata.EffectiveNamespace(),
		Status:             reg.Status,
		Health:             reg.Health,
		HealthCheckResults: maps.Clone(reg.HealthCheckResults),
		IsLoaded:           reg.IsLoaded,
		LoadOrder:          slices.Clone(reg.LoadOrder),
		Dependencies:       reg.Metadata.DependencyIDs(),
		Dependents:         resolver.Dependents(moduleID, r.registeredMetadataLocked()),
		Metrics:            reg.Metrics,
	}
	r.mu.Unlock()

	for _, rt := range r.routes.Routes(moduleID) {
		for _, m := range rt.Methods {
			view.Routes = append(view.Routes, m+" "+r.routes.Prefix(view.Namespace)+rt.PathPattern)
		}
	}
	return view, true
}

// IsRegistered reports whether moduleID is registered. It does not touch the
// access time.
func (r *ModuleRegistry) IsRegistered(moduleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registered[moduleID]
	return ok
}

// DiscoverModules lists registered modules matching q, ordered by id.
func (r *ModuleRegistry) DiscoverModules(q DiscoveryQuery) []ModuleSummary {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleSummary, 0, len(r.registered))
	for _, reg := range r.registered {
		m := reg.Metadata
		if q.Type != "" && m.Type != q.Type {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.ID), search) &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Description), search) {
			continue
		}
		if !hasAllTags(m.Tags, q.Tags) {
			continue
		}
		out = append(out, ModuleSummary{
			ModuleID:    m.ID,
			Name:        m.Name,
			Description: m.Description,
			Version:     m.Version,
			Type:        m.Type,
			Status:      reg.Status,
			Health:      reg.Health,
			Tags:        slices.Clone(m.Tags),
		})
	}
	slices.SortFunc(out, func(a, b ModuleSummary) int { return strings.Compare(a.ModuleID, b.ModuleID) })
	return out
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		if !slices.ContainsFunc(have, func(h string) bool { return strings.EqualFold(h, w) }) {
			return false
		}
	}
	return true
}

// GetRouteMetrics returns route metrics for moduleID, or for all modules
// when moduleID is empty.
func (r *ModuleRegistry) GetRouteMetrics(moduleID string) map[string]routing.RouteMetricsView {
	return r.routes.Metrics().Snapshot(moduleID)
}

// GetRegistrationHistory returns up to limit results, most recent first.
// A limit of zero or less returns the whole history.
func (r *ModuleRegistry) GetRegistrationHistory(limit int) []RegistrationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	return slices.Clone(r.history[:limit])
}

// GetMemoryStats reports the sizes of the registry's bounded collections.
func (r *ModuleRegistry) GetMemoryStats() MemoryStats {
	r.mu.RLock()
	stats := MemoryStats{
		RegisteredModules:       len(r.registered),
		MaxRegisteredModules:    r.cfg.MaxRegisteredModules,
		PendingRegistrations:    len(r.pending),
		MaxPendingRegistrations: r.cfg.MaxPendingRegistrations,
		HistoryEntries:          len(r.history),
	}
	r.mu.RUnlock()

	stats.BackgroundTasks = r.supervisor.Count()
	stats.TaskFailures = r.supervisor.Failures()
	stats.RouteMetrics = r.routes.Metrics().Len()
	stats.ResolverCacheSize = r.resolver.CacheLen()
	return stats
}

// LoadOrder returns a load order covering every registered module.
func (r *ModuleRegistry) LoadOrder() ([]string, error) {
	mods := r.registeredMetadata()
	g := resolver.NewGraph()
	for _, id := range slices.Sorted(maps.Keys(mods)) {
		g.AddNode(id)
		for _, dep := range mods[id].Dependencies {
			if _, ok := mods[dep.ModuleID]; ok {
				g.AddEdge(id, dep.ModuleID)
			}
		}
	}
	return g.LoadOrder()
}
