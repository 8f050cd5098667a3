package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/resolver"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/store"
)

// evictionReasonMemoryLimit is recorded on modules removed by evictLocked.
const evictionReasonMemoryLimit = "memory_limit"

// DeregisterModule removes a registered module. Unless force is set it
// refuses while other registered modules declare a dependency on it.
func (r *ModuleRegistry) DeregisterModule(ctx context.Context, moduleID, requesterID string, force bool) (bool, error) {
	r.mu.Lock()
	reg, ok := r.registered[moduleID]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", modular.ErrModuleNotFound, moduleID)
	}
	if op, busy := r.inFlight[moduleID]; busy {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s (%s)", modular.ErrModuleBusy, moduleID, op)
	}
	if !force {
		if deps := resolver.Dependents(moduleID, r.registeredMetadataLocked()); len(deps) > 0 {
			r.mu.Unlock()
			return false, fmt.Errorf("%w: %s is required by %s", modular.ErrHasDependents, moduleID, strings.Join(deps, ", "))
		}
	}
	// Holding the in-flight slot keeps concurrent registrations and
	// deregistrations of the same id out while the lock is released.
	r.inFlight[moduleID] = string(modular.StateDeregistering)
	r.mu.Unlock()
	defer r.release(moduleID, string(modular.StateDeregistering))

	r.logger.Info("Deregistering module", "module", moduleID, "requester", requesterID, "force", force)

	if err := r.store.Delete(ctx, moduleID); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		r.logger.Error("Failed to delete module record", "module", moduleID, "error", err)
		if !errors.Is(err, modular.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %w", modular.ErrPersistenceFailure, err)
		}
		return false, err
	}
	r.unmount(ctx, moduleID)

	r.mu.Lock()
	delete(r.registered, moduleID)
	r.mu.Unlock()

	r.events.Emit(ctx, modular.EventTypeModuleDeregistered, map[string]any{
		"module_id": moduleID,
		"version":   reg.Metadata.Version,
		"forced":    force,
	})
	r.auditAction(ctx, store.AuditEntry{
		UserID:       requesterID,
		Action:       store.ActionModuleDeregistered,
		ResourceType: "module",
		ResourceID:   moduleID,
		Description:  fmt.Sprintf("Deregistered module %s %s", moduleID, reg.Metadata.Version),
		Metadata:     map[string]any{"force": force},
	})
	r.logger.Info("Module deregistered", "module", moduleID)
	return true, nil
}

// UnregisterModule is DeregisterModule reporting its outcome as a result
// value.
func (r *ModuleRegistry) UnregisterModule(ctx context.Context, moduleID, requesterID string, force bool) UnregisterResult {
	ok, err := r.DeregisterModule(ctx, moduleID, requesterID, force)
	if err != nil {
		return UnregisterResult{Success: false, Message: err.Error()}
	}
	return UnregisterResult{Success: ok, Message: fmt.Sprintf("module %s unregistered", moduleID)}
}

// evictLocked removes least recently accessed modules until at most keep
// remain. At least max(1, ceil(10% of capacity)) go at once so a full
// registry is not evicting on every insert. Modules another registered
// module requires, and the ids in pinned, are never chosen; when that leaves
// too few candidates nothing is evicted and ErrMemoryLimitExceeded is
// returned.
func (r *ModuleRegistry) evictLocked(keep int, pinned ...string) ([]*ModuleRegistration, error) {
	if len(r.registered) <= keep {
		return nil, nil
	}
	need := len(r.registered) - keep
	batch := max(1, int(math.Ceil(float64(r.cfg.MaxRegisteredModules)*0.1)))

	protected := make(map[string]bool, len(pinned))
	for _, id := range pinned {
		protected[id] = true
	}
	for _, reg := range r.registered {
		for _, dep := range reg.Metadata.Dependencies {
			if dep.Required {
				protected[dep.ModuleID] = true
			}
		}
	}

	regs := make([]*ModuleRegistration, 0, len(r.registered))
	for id, reg := range r.registered {
		if !protected[id] {
			regs = append(regs, reg)
		}
	}
	if len(regs) < need {
		return nil, fmt.Errorf("%w: %d modules over capacity, %d evictable", modular.ErrMemoryLimitExceeded, need, len(regs))
	}
	slices.SortFunc(regs, func(a, b *ModuleRegistration) int {
		if c := a.Metrics.LastAccessed.Compare(b.Metrics.LastAccessed); c != 0 {
			return c
		}
		return strings.Compare(a.Metadata.ID, b.Metadata.ID)
	})

	evicted := regs[:min(max(batch, need), len(regs))]
	for _, reg := range evicted {
		delete(r.registered, reg.Metadata.ID)
	}
	return evicted, nil
}

// afterEviction releases the routes and records of evicted modules. It runs
// without the registry lock.
func (r *ModuleRegistry) afterEviction(ctx context.Context, evicted []*ModuleRegistration) {
	for _, reg := range evicted {
		id := reg.Metadata.ID
		r.unmount(ctx, id)
		if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrRecordNotFound) {
			r.logger.Warn("Failed to delete evicted module record", "module", id, "error", err)
		}
		r.logger.Warn("Evicted module", "module", id, "reason", evictionReasonMemoryLimit, "lastAccessed", reg.Metrics.LastAccessed)
		r.events.Emit(ctx, modular.EventTypeModuleEvicted, map[string]any{
			"module_id": id,
			"reason":    evictionReasonMemoryLimit,
		})
		r.auditAction(ctx, store.AuditEntry{
			UserID:       SystemRequester,
			Action:       store.ActionModuleEvicted,
			ResourceType: "module",
			ResourceID:   id,
			Description:  fmt.Sprintf("Evicted module %s to stay within the registry limit", id),
			Metadata:     map[string]any{"reason": evictionReasonMemoryLimit},
		})
	}
}
