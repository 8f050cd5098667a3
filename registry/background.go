package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/health"
)

type loop struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	busy     atomic.Bool
}

// Start schedules the background loops: health monitoring, pending
// cleanup, memory management and route metrics rotation. Each tick runs
// under the supervisor; a tick is skipped while the previous one is still
// running.
func (r *ModuleRegistry) Start(ctx context.Context) error {
	r.mu.RLock()
	stopped := r.stopped
	r.mu.RUnlock()
	if stopped {
		return modular.ErrRegistryStopped
	}

	r.cronMu.Lock()
	defer r.cronMu.Unlock()
	if r.cron != nil {
		return nil
	}

	loops := []*loop{
		{name: "health-monitor", interval: r.cfg.HealthInterval, run: r.CheckHealth},
		{name: "pending-cleanup", interval: r.cfg.CleanupInterval, run: r.CleanupPending},
		{name: "memory-manager", interval: r.cfg.MemoryInterval, run: r.ManageMemory},
		{name: "metrics-rotation", interval: r.cfg.MetricsRotationInterval, run: r.RotateMetrics},
	}

	c := cron.New()
	for _, l := range loops {
		if _, err := c.AddFunc("@every "+l.interval.String(), func() { r.tick(l) }); err != nil {
			return fmt.Errorf("schedule %s: %w", l.name, err)
		}
	}
	c.Start()
	r.cron = c
	r.logger.Info("Registry background loops started",
		"healthInterval", r.cfg.HealthInterval,
		"cleanupInterval", r.cfg.CleanupInterval,
		"memoryInterval", r.cfg.MemoryInterval,
		"metricsRotationInterval", r.cfg.MetricsRotationInterval,
	)
	return nil
}

func (r *ModuleRegistry) tick(l *loop) {
	if !l.busy.CompareAndSwap(false, true) {
		r.logger.Debug("Skipping background tick, previous run still active", "task", l.name)
		return
	}
	err := r.supervisor.Go(l.name, func(ctx context.Context) error {
		defer l.busy.Store(false)
		return l.run(ctx)
	})
	if err != nil {
		l.busy.Store(false)
	}
}

// Stop halts the loops, refuses further registrations and waits for every
// supervised task. Without a deadline on ctx the configured shutdown
// timeout applies.
func (r *ModuleRegistry) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && r.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ShutdownTimeout)
		defer cancel()
	}

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cronMu.Lock()
	if r.cron != nil {
		cronDone := r.cron.Stop()
		select {
		case <-cronDone.Done():
		case <-ctx.Done():
		}
		r.cron = nil
	}
	r.cronMu.Unlock()

	r.logger.Info("Stopping registry", "tasks", r.supervisor.Count())
	return r.supervisor.Shutdown(ctx)
}

// CheckHealth probes every registered module and records the results.
// Status transitions emit a health_changed event.
func (r *ModuleRegistry) CheckHealth(ctx context.Context) error {
	r.mu.RLock()
	targets := make([]health.Target, 0, len(r.registered))
	for _, reg := range r.registered {
		targets = append(targets, health.Target{Metadata: reg.Metadata, Instance: reg.instance})
	}
	r.mu.RUnlock()

	results := r.health.CheckMany(ctx, targets)
	if err := ctx.Err(); err != nil {
		r.logger.Debug("Health sweep abandoned", "error", err)
		return err
	}

	type change struct {
		id       string
		from, to modular.HealthStatus
	}
	var changes []change
	r.mu.Lock()
	for _, res := range results {
		reg, ok := r.registered[res.ModuleID]
		if !ok {
			continue
		}
		reg.Metrics.HealthChecks++
		if reg.Health != res.Status {
			changes = append(changes, change{id: res.ModuleID, from: reg.Health, to: res.Status})
		}
		reg.Health = res.Status
		reg.HealthCheckResults = res.Checks
	}
	r.mu.Unlock()

	for _, c := range changes {
		log := r.logger.Info
		if !c.to.IsHealthy() {
			log = r.logger.Warn
		}
		log("Module health changed", "module", c.id, "from", c.from.String(), "to", c.to.String())
		r.events.Emit(ctx, modular.EventTypeModuleHealthChanged, map[string]any{
			"module_id": c.id,
			"previous":  c.from.String(),
			"current":   c.to.String(),
		})
	}
	r.logger.Debug("Health sweep complete", "modules", len(results), "changed", len(changes))
	return nil
}

// CleanupPending fails pending requests older than the configured maximum
// age.
func (r *ModuleRegistry) CleanupPending(ctx context.Context) error {
	cutoff := r.now().Add(-r.cfg.PendingMaxAge)

	r.mu.Lock()
	var stale []*RegistrationRequest
	for _, req := range r.pending {
		if req.CreatedAt.Before(cutoff) {
			stale = append(stale, req)
		}
	}
	for _, req := range stale {
		r.finishLocked(req, RegistrationResult{
			State:   modular.StateFailed,
			Message: fmt.Sprintf("pending for longer than %s", r.cfg.PendingMaxAge),
			Kind:    modular.ErrorKindUnavailable,
		})
	}
	r.mu.Unlock()

	for _, req := range stale {
		r.logger.Warn("Purged stale registration request", "requestID", req.RequestID, "module", req.Metadata.ID, "age", r.now().Sub(req.CreatedAt))
	}
	return nil
}

// ManageMemory brings the registry back within its limits and reports
// current usage.
func (r *ModuleRegistry) ManageMemory(ctx context.Context) error {
	r.mu.Lock()
	evicted, err := r.evictLocked(r.cfg.MaxRegisteredModules)
	r.trimHistoryLocked()
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("Registry over capacity", "error", err)
	}

	r.afterEviction(ctx, evicted)

	stats := r.GetMemoryStats()
	r.logger.Debug("Registry memory",
		"registered", stats.RegisteredModules,
		"pending", stats.PendingRegistrations,
		"history", stats.HistoryEntries,
		"tasks", stats.BackgroundTasks,
		"routeMetrics", stats.RouteMetrics,
		"resolverCache", stats.ResolverCacheSize,
	)
	return nil
}

// RotateMetrics snapshots route metrics to the configured sink and prunes
// the oldest entries.
func (r *ModuleRegistry) RotateMetrics(ctx context.Context) error {
	r.routes.Metrics().Rotate(ctx)
	return nil
}
