// Package routing composes module routes into one namespaced HTTP surface,
// rejects path and method collisions between modules and records per-route
// metrics.
package routing

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// RegisteredRoute records which module owns a path.
type RegisteredRoute struct {
	PathPattern string   `json:"path_pattern"`
	Methods     []string `json:"methods"`
	ModuleID    string   `json:"module_id"`
	Namespace   string   `json:"namespace"`
}

// RouteKey is the conflict key of one path and method.
func RouteKey(path, method string) string {
	return path + ":" + strings.ToUpper(method)
}

// ConflictDetector tracks route ownership. Each (path, method) pair has at
// most one owner; paths are compared relative to the module namespace.
type ConflictDetector struct {
	mu       sync.RWMutex
	owners   map[string]RegisteredRoute
	byModule map[string][]RegisteredRoute
}

// NewConflictDetector returns an empty detector.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{
		owners:   make(map[string]RegisteredRoute),
		byModule: make(map[string][]RegisteredRoute),
	}
}

// CheckConflict reports whether any of methods on path is owned by a module
// other than moduleID. The returned string describes the first conflict.
func (d *ConflictDetector) CheckConflict(path string, methods []string, moduleID, namespace string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.checkLocked(path, methods, moduleID)
}

func (d *ConflictDetector) checkLocked(path string, methods []string, moduleID string) (string, bool) {
	for _, method := range methods {
		owner, ok := d.owners[RouteKey(path, method)]
		if ok && owner.ModuleID != moduleID {
			return fmt.Sprintf("%s %s is already registered by module %s", strings.ToUpper(method), path, owner.ModuleID), true
		}
	}
	return "", false
}

// Reserve claims every route for moduleID, or none of them.
func (d *ConflictDetector) Reserve(moduleID, namespace string, routes []RegisteredRoute) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var conflicts []string
	for _, r := range routes {
		if msg, conflict := d.checkLocked(r.PathPattern, r.Methods, moduleID); conflict {
			conflicts = append(conflicts, msg)
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", modular.ErrRouteConflict, strings.Join(conflicts, "; "))
	}

	for _, r := range routes {
		r.ModuleID, r.Namespace = moduleID, namespace
		r.Methods = normalizeMethods(r.Methods)
		for _, method := range r.Methods {
			d.owners[RouteKey(r.PathPattern, method)] = r
		}
		d.byModule[moduleID] = append(d.byModule[moduleID], r)
	}
	return nil
}

// Release drops every route owned by moduleID and returns them.
func (d *ConflictDetector) Release(moduleID string) []RegisteredRoute {
	d.mu.Lock()
	defer d.mu.Unlock()

	routes := d.byModule[moduleID]
	for _, r := range routes {
		for _, method := range r.Methods {
			key := RouteKey(r.PathPattern, method)
			if d.owners[key].ModuleID == moduleID {
				delete(d.owners, key)
			}
		}
	}
	delete(d.byModule, moduleID)
	return routes
}

// Routes returns the routes owned by moduleID.
func (d *ConflictDetector) Routes(moduleID string) []RegisteredRoute {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.byModule[moduleID])
}

// Owner returns the module owning path and method.
func (d *ConflictDetector) Owner(path, method string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.owners[RouteKey(path, method)]
	return r.ModuleID, ok
}

func normalizeMethods(methods []string) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(m)
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
