package routing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// RouteMetrics holds counters for one module route.
type RouteMetrics struct {
	CallCount       int64     `json:"call_count"`
	TotalDurationMs float64   `json:"total_duration_ms"`
	ErrorCount      int64     `json:"error_count"`
	LastCalled      time.Time `json:"last_called"`
	CreatedAt       time.Time `json:"created_at"`
}

// AvgDurationMs returns the mean call duration, 0 before the first call.
func (m RouteMetrics) AvgDurationMs() float64 {
	if m.CallCount == 0 {
		return 0
	}
	return m.TotalDurationMs / float64(m.CallCount)
}

// SuccessRate returns the fraction of calls that did not fail. It is 1.0
// before the first call.
func (m RouteMetrics) SuccessRate() float64 {
	if m.CallCount == 0 {
		return 1.0
	}
	return float64(m.CallCount-m.ErrorCount) / float64(m.CallCount)
}

// RouteMetricsView is the reporting form of RouteMetrics.
type RouteMetricsView struct {
	ModuleID        string    `json:"module_id"`
	Path            string    `json:"path"`
	CallCount       int64     `json:"call_count"`
	TotalDurationMs float64   `json:"total_duration_ms"`
	ErrorCount      int64     `json:"error_count"`
	LastCalled      time.Time `json:"last_called"`
	AvgDurationMs   float64   `json:"avg_duration_ms"`
	SuccessRate     float64   `json:"success_rate"`
}

// MetricsSink receives the snapshot taken before each rotation.
type MetricsSink interface {
	WriteMetrics(ctx context.Context, snapshot map[string]RouteMetricsView) error
}

// MetricsStore keeps bounded per-route metrics keyed by "moduleID:path".
type MetricsStore struct {
	mu         sync.Mutex
	entries    map[string]*RouteMetrics
	maxCalls   int64
	maxAge     time.Duration
	maxMetrics int
	sink       MetricsSink
	logger     modular.Logger
	now        func() time.Time
}

// NewMetricsStore creates a store bounded by cfg.
func NewMetricsStore(cfg modular.RoutingConfig, logger modular.Logger) *MetricsStore {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	return &MetricsStore{
		entries:    make(map[string]*RouteMetrics),
		maxCalls:   cfg.MaxCallCount,
		maxAge:     cfg.MaxAge,
		maxMetrics: cfg.MaxMetrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SetSink installs the rotation sink.
func (s *MetricsStore) SetSink(sink MetricsSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// MetricsKey joins a module id and route path.
func MetricsKey(moduleID, path string) string {
	return moduleID + ":" + path
}

// Record adds one call. Counters restart once the entry has reached the
// call bound or outlived the age bound.
func (s *MetricsStore) Record(moduleID, path string, duration time.Duration, success bool) {
	now := s.now()
	key := MetricsKey(moduleID, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[key]
	if !ok || s.expiredLocked(m, now) {
		if ok {
			s.logger.Debug("Route metrics reset", "key", key, "calls", m.CallCount)
		}
		m = &RouteMetrics{CreatedAt: now}
		s.entries[key] = m
	}
	m.CallCount++
	m.TotalDurationMs += float64(duration) / float64(time.Millisecond)
	if !success {
		m.ErrorCount++
	}
	m.LastCalled = now
}

func (s *MetricsStore) expiredLocked(m *RouteMetrics, now time.Time) bool {
	if s.maxCalls > 0 && m.CallCount >= s.maxCalls {
		return true
	}
	return s.maxAge > 0 && now.Sub(m.CreatedAt) > s.maxAge
}

// Snapshot returns the metrics of moduleID, or of every module when
// moduleID is empty.
func (s *MetricsStore) Snapshot(moduleID string) map[string]RouteMetricsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(moduleID)
}

func (s *MetricsStore) snapshotLocked(moduleID string) map[string]RouteMetricsView {
	out := make(map[string]RouteMetricsView)
	for key, m := range s.entries {
		mod, path, _ := strings.Cut(key, ":")
		if moduleID != "" && mod != moduleID {
			continue
		}
		out[key] = RouteMetricsView{
			ModuleID:        mod,
			Path:            path,
			CallCount:       m.CallCount,
			TotalDurationMs: m.TotalDurationMs,
			ErrorCount:      m.ErrorCount,
			LastCalled:      m.LastCalled,
			AvgDurationMs:   m.AvgDurationMs(),
			SuccessRate:     m.SuccessRate(),
		}
	}
	return out
}

// Remove drops every entry owned by moduleID.
func (s *MetricsStore) Remove(moduleID string) {
	prefix := moduleID + ":"
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of tracked routes.
func (s *MetricsStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Rotate hands a snapshot to the sink, then prunes the least recently
// called entries above the configured maximum. It returns the number pruned.
// A sink error is logged; pruning still happens.
func (s *MetricsStore) Rotate(ctx context.Context) int {
	s.mu.Lock()
	snapshot := s.snapshotLocked("")
	sink := s.sink

	pruned := 0
	if excess := len(s.entries) - s.maxMetrics; s.maxMetrics > 0 && excess > 0 {
		keys := make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			if c := s.entries[a].LastCalled.Compare(s.entries[b].LastCalled); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		})
		for _, k := range keys[:excess] {
			delete(s.entries, k)
		}
		pruned = excess
	}
	s.mu.Unlock()

	if sink != nil {
		if err := sink.WriteMetrics(ctx, snapshot); err != nil {
			s.logger.Warn("Failed to persist route metrics snapshot", "entries", len(snapshot), "error", err)
		}
	}
	if pruned > 0 {
		s.logger.Info("Pruned route metrics", "pruned", pruned, "kept", s.maxMetrics)
	}
	return pruned
}
