package routing

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Route is one handler declared by a module. Pattern is relative to the
// module namespace.
type Route struct {
	Pattern string
	Methods []string
	Handler http.Handler
}

type mount struct {
	namespace string
	routes    []Route
}

// Manager owns the composed module router. The router is rebuilt on every
// change and swapped atomically, so in-flight requests keep the tree they
// started on.
type Manager struct {
	cfg      modular.RoutingConfig
	detector *ConflictDetector
	metrics  *MetricsStore
	events   modular.EventEmitter
	logger   modular.Logger

	mu     sync.Mutex
	mounts map[string]mount
	router atomic.Pointer[chi.Mux]
}

// NewManager creates a manager with an empty router.
func NewManager(cfg modular.RoutingConfig, metrics *MetricsStore, events modular.EventEmitter, logger modular.Logger) *Manager {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	if events == nil {
		events = modular.NopEmitter{}
	}
	if metrics == nil {
		metrics = NewMetricsStore(cfg, logger)
	}
	if cfg.APIVersion < 1 {
		cfg.APIVersion = 1
	}
	m := &Manager{
		cfg:      cfg,
		detector: NewConflictDetector(),
		metrics:  metrics,
		events:   events,
		logger:   logger,
		mounts:   make(map[string]mount),
	}
	m.router.Store(chi.NewRouter())
	return m
}

// Prefix returns the mount point of a namespace.
func (m *Manager) Prefix(namespace string) string {
	return fmt.Sprintf("/api/v%d/modules/%s", m.cfg.APIVersion, namespace)
}

// Detector exposes the conflict detector.
func (m *Manager) Detector() *ConflictDetector { return m.detector }

// Metrics exposes the route metrics store.
func (m *Manager) Metrics() *MetricsStore { return m.metrics }

// RegisterModule mounts routes under the module namespace. Every route is
// checked before anything is committed; on a conflict nothing is mounted.
func (m *Manager) RegisterModule(ctx context.Context, moduleID, namespace string, routes []Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.mounts[moduleID]; ok {
		return fmt.Errorf("%w: module %s already has mounted routes", modular.ErrRouteConflict, moduleID)
	}
	for _, r := range routes {
		if err := checkRoute(r); err != nil {
			return err
		}
	}

	registered := make([]RegisteredRoute, 0, len(routes))
	for _, r := range routes {
		registered = append(registered, RegisteredRoute{PathPattern: r.Pattern, Methods: r.Methods})
	}
	if err := m.detector.Reserve(moduleID, namespace, registered); err != nil {
		m.logger.Warn("Route conflict", "module", moduleID, "error", err)
		return err
	}

	m.mounts[moduleID] = mount{namespace: namespace, routes: routes}
	if err := m.rebuildLocked(); err != nil {
		delete(m.mounts, moduleID)
		m.detector.Release(moduleID)
		return err
	}

	m.logger.Info("Mounted module routes", "module", moduleID, "prefix", m.Prefix(namespace), "routes", len(routes))
	m.events.Emit(ctx, modular.EventTypeRoutesMounted, map[string]any{
		"module_id": moduleID,
		"prefix":    m.Prefix(namespace),
		"routes":    len(routes),
	})
	return nil
}

// UnregisterModule removes every route of moduleID. It fails with
// ErrModuleRoutesNotFound when the module owns no routes, including a
// module mounted with an empty route set, whose mount is dropped anyway.
func (m *Manager) UnregisterModule(ctx context.Context, moduleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.mounts[moduleID]
	if !ok || len(mt.routes) == 0 {
		delete(m.mounts, moduleID)
		m.detector.Release(moduleID)
		return fmt.Errorf("%w: %s", modular.ErrModuleRoutesNotFound, moduleID)
	}
	delete(m.mounts, moduleID)
	m.detector.Release(moduleID)
	if err := m.rebuildLocked(); err != nil {
		// The remaining mounts built before, so this only fails on a bug.
		m.logger.Error("Failed to rebuild router after unmount", "module", moduleID, "error", err)
	}
	m.metrics.Remove(moduleID)

	m.logger.Info("Unmounted module routes", "module", moduleID, "prefix", m.Prefix(mt.namespace))
	m.events.Emit(ctx, modular.EventTypeRoutesUnmounted, map[string]any{
		"module_id": moduleID,
		"prefix":    m.Prefix(mt.namespace),
	})
	return nil
}

// Mounted reports whether moduleID has routes mounted.
func (m *Manager) Mounted(moduleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.mounts[moduleID]
	return ok
}

// Routes returns the routes owned by moduleID.
func (m *Manager) Routes(moduleID string) []RegisteredRoute {
	return m.detector.Routes(moduleID)
}

// ServeHTTP dispatches to the current router.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.Load().ServeHTTP(w, r)
}

func checkRoute(r Route) error {
	if r.Handler == nil {
		return fmt.Errorf("%w: route %s has no handler", modular.ErrValidationFailed, r.Pattern)
	}
	if len(r.Pattern) == 0 || r.Pattern[0] != '/' {
		return fmt.Errorf("%w: route pattern %q must start with /", modular.ErrValidationFailed, r.Pattern)
	}
	if len(r.Methods) == 0 {
		return fmt.Errorf("%w: route %s declares no methods", modular.ErrValidationFailed, r.Pattern)
	}
	for _, method := range r.Methods {
		if !slices.Contains(modular.HTTPMethods, method) {
			return fmt.Errorf("%w: route %s uses unsupported method %q", modular.ErrValidationFailed, r.Pattern, method)
		}
	}
	return nil
}

// rebuildLocked builds a fresh router from every mount and swaps it in.
// chi panics on malformed patterns; that is turned into an error and the
// previous router stays in place.
func (m *Manager) rebuildLocked() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", modular.ErrRouteConflict, r)
		}
	}()

	ids := make([]string, 0, len(m.mounts))
	for id := range m.mounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	root := chi.NewRouter()
	for _, id := range ids {
		mt := m.mounts[id]
		if len(mt.routes) == 0 {
			continue
		}
		root.Route(m.Prefix(mt.namespace), func(sub chi.Router) {
			for _, r := range mt.routes {
				h := m.instrument(id, r.Pattern, r.Handler)
				for _, method := range r.Methods {
					sub.Method(method, r.Pattern, h)
				}
			}
		})
	}
	m.router.Store(root)
	return nil
}

// instrument records duration and outcome of every call. Responses with a
// 5xx status and panics count as failures; panics are re-raised.
func (m *Manager) instrument(moduleID, pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				m.metrics.Record(moduleID, pattern, time.Since(start), false)
				panic(p)
			}
			m.metrics.Record(moduleID, pattern, time.Since(start), rw.status < http.StatusInternalServerError)
		}()
		next.ServeHTTP(rw, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
