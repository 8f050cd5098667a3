// Package registry owns the lifecycle of dynamically registered modules:
// it queues registration requests, runs them through validation,
// dependency resolution, loading, route mounting and persistence, keeps the
// registered set within its memory bounds and monitors module health in the
// background.
package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/health"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/resolver"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/routing"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/store"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/validator"
)

// SystemRequester is recorded as the actor of actions the registry takes on
// its own, such as eviction.
const SystemRequester = "system"

// ModuleRegistry is the registration engine. Create it with New.
//
// registered, pending, inFlight and history are guarded by mu. Methods
// suffixed Locked expect mu to be held.
type ModuleRegistry struct {
	cfg    modular.RegistryConfig
	logger modular.Logger
	events modular.EventEmitter
	now    func() time.Time

	validator  *validator.ModuleValidator
	resolver   *resolver.DependencyResolver
	health     *health.ModuleHealthChecker
	routes     *routing.Manager
	store      store.ModuleStore
	audit      store.AuditSink
	loader     *Loader
	supervisor *Supervisor

	mu         sync.RWMutex
	registered map[string]*ModuleRegistration
	pending    map[string]*RegistrationRequest
	inFlight   map[string]string
	history    []RegistrationResult
	results    map[string]RegistrationResult
	stopped    bool

	cronMu sync.Mutex
	cron   *cron.Cron
}

// Option configures a ModuleRegistry.
type Option func(*ModuleRegistry)

// WithLogger sets the logger.
func WithLogger(logger modular.Logger) Option {
	return func(r *ModuleRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEvents sets where lifecycle events are emitted.
func WithEvents(events modular.EventEmitter) Option {
	return func(r *ModuleRegistry) {
		if events != nil {
			r.events = events
		}
	}
}

// WithValidator replaces the validator built from configuration.
func WithValidator(v *validator.ModuleValidator) Option {
	return func(r *ModuleRegistry) { r.validator = v }
}

// WithRoutingManager replaces the routing manager built from configuration.
func WithRoutingManager(m *routing.Manager) Option {
	return func(r *ModuleRegistry) { r.routes = m }
}

// WithStore sets the persistence backend. The default is in memory.
func WithStore(s store.ModuleStore) Option {
	return func(r *ModuleRegistry) { r.store = s }
}

// WithAuditSink sets the audit collaborator. The default logs entries.
func WithAuditSink(a store.AuditSink) Option {
	return func(r *ModuleRegistry) { r.audit = a }
}

// WithLoader sets the factory loader used for auto-activation.
func WithLoader(l *Loader) Option {
	return func(r *ModuleRegistry) { r.loader = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *ModuleRegistry) { r.now = now }
}

// New builds a registry from cfg. Collaborators not supplied through
// options are created from the matching configuration section.
func New(cfg modular.Config, opts ...Option) (*ModuleRegistry, error) {
	r := &ModuleRegistry{
		cfg:        cfg.Registry,
		logger:     modular.NopLogger{},
		events:     modular.NopEmitter{},
		now:        time.Now,
		registered: make(map[string]*ModuleRegistration),
		pending:    make(map[string]*RegistrationRequest),
		inFlight:   make(map[string]string),
		results:    make(map[string]RegistrationResult),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.resolver, err = resolver.New(cfg.Resolver.CacheSize, r.logger); err != nil {
		return nil, err
	}
	if r.validator == nil {
		r.validator = validator.FromConfig(cfg.Validator, r.logger)
	}
	if r.routes == nil {
		r.routes = routing.NewManager(cfg.Routing, nil, r.events, r.logger)
	}
	if r.store == nil {
		r.store = store.NewMemoryStore()
	}
	if r.audit == nil {
		r.audit = store.NewLoggerAuditSink(r.logger)
	}
	if r.loader == nil {
		r.loader = NewLoader()
	}
	r.health = health.New(cfg.Health, r, r.logger)
	r.supervisor = NewSupervisor(context.Background(), r.logger)
	return r, nil
}

// Routes returns the composed module router.
func (r *ModuleRegistry) Routes() *routing.Manager { return r.routes }

// Loader returns the factory loader.
func (r *ModuleRegistry) Loader() *Loader { return r.loader }

// HasFactory implements health.Catalog.
func (r *ModuleRegistry) HasFactory(entryPoint string) bool {
	return r.loader.HasFactory(entryPoint)
}

// Lookup implements health.Catalog.
func (r *ModuleRegistry) Lookup(moduleID string) (modular.ModuleMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registered[moduleID]
	if !ok {
		return modular.ModuleMetadata{}, false
	}
	return reg.Metadata, true
}

// RegisterModule queues metadata for registration and returns the request
// id immediately. Processing continues in the background; use
// WaitForRequest or GetRegistrationHistory for the outcome. When the
// pending queue is full the oldest request is evicted first.
func (r *ModuleRegistry) RegisterModule(ctx context.Context, metadata modular.ModuleMetadata, requesterID string, opts ...RegisterOption) (string, error) {
	now := r.now()
	req := &RegistrationRequest{
		RequestID:    modular.NewID(),
		Metadata:     metadata.Clone(),
		RequesterID:  requesterID,
		Status:       modular.StatePending,
		AutoActivate: r.cfg.AutoActivate,
		CreatedAt:    now,
		UpdatedAt:    now,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(req)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return "", modular.ErrRegistryStopped
	}
	var evicted *RegistrationRequest
	if len(r.pending) >= r.cfg.MaxPendingRegistrations {
		evicted = r.oldestPendingLocked()
		if evicted != nil {
			r.finishLocked(evicted, RegistrationResult{
				State:   modular.StateFailed,
				Message: "evicted from pending queue: too many pending registrations",
				Kind:    modular.ErrorKindUnavailable,
			})
		}
	}
	r.pending[req.RequestID] = req
	r.mu.Unlock()

	if evicted != nil {
		r.logger.Warn("Evicted pending registration", "requestID", evicted.RequestID, "module", evicted.Metadata.ID)
		r.events.Emit(ctx, modular.EventTypeRequestEvicted, map[string]any{
			"request_id": evicted.RequestID,
			"module_id":  evicted.Metadata.ID,
		})
	}

	r.logger.Info("Registration queued", "requestID", req.RequestID, "module", req.Metadata.ID, "requester", requesterID)
	r.events.Emit(ctx, modular.EventTypeRequestQueued, map[string]any{
		"request_id": req.RequestID,
		"module_id":  req.Metadata.ID,
	})

	if err := r.supervisor.Go("register:"+req.RequestID, func(ctx context.Context) error {
		r.process(ctx, req)
		return nil
	}); err != nil {
		r.mu.Lock()
		r.finishLocked(req, RegistrationResult{State: modular.StateFailed, Message: err.Error(), Kind: modular.ClassifyError(err)})
		r.mu.Unlock()
		return "", err
	}
	return req.RequestID, nil
}

// WaitForRequest blocks until requestID is terminal or ctx is done.
func (r *ModuleRegistry) WaitForRequest(ctx context.Context, requestID string) (RegistrationResult, error) {
	r.mu.RLock()
	req, pending := r.pending[requestID]
	res, done := r.results[requestID]
	r.mu.RUnlock()

	switch {
	case done:
		return res, nil
	case !pending:
		return RegistrationResult{}, fmt.Errorf("%w: %s", modular.ErrRequestNotFound, requestID)
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return RegistrationResult{}, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.results[requestID]; ok {
		return res, nil
	}
	return RegistrationResult{}, fmt.Errorf("%w: %s", modular.ErrRequestNotFound, requestID)
}

// RequestStatus returns a copy of a pending request.
func (r *ModuleRegistry) RequestStatus(requestID string) (RegistrationRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.pending[requestID]
	if !ok {
		return RegistrationRequest{}, false
	}
	return *req, true
}

// process runs the registration pipeline for req. Every exit path leaves
// req terminal and out of the pending set.
func (r *ModuleRegistry) process(ctx context.Context, req *RegistrationRequest) {
	start := r.now()
	meta := req.Metadata
	var warnings []string

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Registration pipeline panicked", "requestID", req.RequestID, "module", meta.ID, "panic", p, "stack", string(debug.Stack()))
			r.fail(ctx, req, fmt.Errorf("internal error: %v", p), nil, warnings)
		}
	}()

	if !r.transition(req, modular.StateValidating) {
		return
	}

	ok, results := r.validator.Validate(ctx, meta)
	r.mu.Lock()
	req.ValidationResults = results
	r.mu.Unlock()
	warnings = append(warnings, results.Warnings...)
	if !ok {
		r.fail(ctx, req, results.Err(), results.Errors, warnings)
		return
	}

	if err := r.claim(ctx, req); err != nil {
		r.fail(ctx, req, err, nil, warnings)
		return
	}
	defer r.release(meta.ID, req.RequestID)

	resolvable, info := r.resolver.Resolve(meta, r.registeredMetadata())
	warnings = append(warnings, info.Warnings...)
	if !resolvable {
		r.fail(ctx, req, info.Err(), nil, warnings)
		return
	}

	instance, loadWarning, err := r.load(req)
	if loadWarning != "" {
		warnings = append(warnings, loadWarning)
	}
	if err != nil {
		r.fail(ctx, req, err, nil, warnings)
		return
	}

	var routes []routing.Route
	if instance != nil {
		routes = routing.CollectRoutes(instance)
	} else {
		routes = routing.StubRoutes(meta)
	}
	if err := r.routes.RegisterModule(ctx, meta.ID, meta.EffectiveNamespace(), routes); err != nil {
		r.fail(ctx, req, err, nil, warnings)
		return
	}

	status := modular.ModuleStatusDevelopment
	if instance != nil {
		status = modular.ModuleStatusActive
	}
	if err := r.store.Create(ctx, store.RecordFromMetadata(meta, status, req.RequesterID, r.now())); err != nil {
		r.unmount(ctx, meta.ID)
		if errors.Is(err, store.ErrRecordExists) {
			err = fmt.Errorf("%w: %s (persisted)", modular.ErrDuplicateModule, meta.ID)
		} else if !errors.Is(err, modular.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %w", modular.ErrPersistenceFailure, err)
		}
		r.fail(ctx, req, err, nil, warnings)
		return
	}

	now := r.now()
	reg := &ModuleRegistration{
		Metadata:       meta,
		RegistrationID: modular.NewID(),
		RequesterID:    req.RequesterID,
		Status:         status,
		Health:         modular.HealthStatusUnknown,
		IsLoaded:       instance != nil,
		LoadOrder:      info.LoadOrder,
		Metrics: RegistrationMetrics{
			RegisteredAt:       now,
			LastAccessed:       now,
			ProcessingDuration: now.Sub(start),
		},
		instance: instance,
	}

	r.mu.Lock()
	if r.pending[req.RequestID] != req {
		// Evicted from the pending queue while processing.
		r.mu.Unlock()
		r.unmount(ctx, meta.ID)
		if err := r.store.Delete(ctx, meta.ID); err != nil {
			r.logger.Warn("Failed to roll back module record", "module", meta.ID, "error", err)
		}
		return
	}
	evicted, err := r.evictLocked(r.cfg.MaxRegisteredModules-1, info.LoadOrder...)
	if err != nil {
		r.mu.Unlock()
		r.unmount(ctx, meta.ID)
		if derr := r.store.Delete(ctx, meta.ID); derr != nil {
			r.logger.Warn("Failed to roll back module record", "module", meta.ID, "error", derr)
		}
		r.fail(ctx, req, err, nil, warnings)
		return
	}
	r.registered[meta.ID] = reg
	r.finishLocked(req, RegistrationResult{
		State:     modular.StateRegistered,
		Success:   true,
		Message:   fmt.Sprintf("module %s registered", meta.ID),
		Warnings:  warnings,
		LoadOrder: info.LoadOrder,
	})
	r.mu.Unlock()

	r.afterEviction(ctx, evicted)

	r.logger.Info("Module registered", "requestID", req.RequestID, "module", meta.ID, "version", meta.Version, "loaded", reg.IsLoaded, "duration", reg.Metrics.ProcessingDuration)
	r.events.Emit(ctx, modular.EventTypeModuleRegistered, map[string]any{
		"module_id":       meta.ID,
		"version":         meta.Version,
		"registration_id": reg.RegistrationID,
		"load_order":      info.LoadOrder,
	})
	r.auditAction(ctx, store.AuditEntry{
		UserID:       req.RequesterID,
		Action:       store.ActionModuleRegistered,
		ResourceType: "module",
		ResourceID:   meta.ID,
		Description:  fmt.Sprintf("Registered module %s %s", meta.ID, meta.Version),
		Metadata:     map[string]any{"request_id": req.RequestID, "load_order": info.LoadOrder},
	})
}

// load returns the module instance to mount, if any. A missing factory is
// not an error: the module is registered metadata-only.
func (r *ModuleRegistry) load(req *RegistrationRequest) (modular.Module, string, error) {
	if req.instance != nil {
		if got := req.instance.Metadata().ID; got != req.Metadata.ID {
			return nil, "", fmt.Errorf("%w: instance reports id %q, metadata declares %q", modular.ErrValidationFailed, got, req.Metadata.ID)
		}
		return req.instance, "", nil
	}
	if !req.AutoActivate || req.Metadata.EntryPoint == "" {
		return nil, "", nil
	}
	if !r.loader.HasFactory(req.Metadata.EntryPoint) {
		return nil, fmt.Sprintf("no factory for entry point %q; registered without an instance", req.Metadata.EntryPoint), nil
	}
	mod, err := r.loader.Load(req.Metadata)
	return mod, "", err
}

func (r *ModuleRegistry) transition(req *RegistrationRequest, to modular.RequestState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !modular.CanTransition(req.Status, to) {
		return false
	}
	req.Status = to
	req.UpdatedAt = r.now()
	return true
}

// claim marks the module id as in flight for req, failing if the id is
// already registered, claimed or persisted.
func (r *ModuleRegistry) claim(ctx context.Context, req *RegistrationRequest) error {
	id := req.Metadata.ID
	r.mu.Lock()
	if _, ok := r.registered[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", modular.ErrDuplicateModule, id)
	}
	if other, ok := r.inFlight[id]; ok && other != req.RequestID {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is being registered by request %s", modular.ErrDuplicateModule, id, other)
	}
	r.inFlight[id] = req.RequestID
	r.mu.Unlock()

	existing, err := r.store.FindByID(ctx, id)
	if err == nil && existing == nil {
		return nil
	}
	r.release(id, req.RequestID)
	if err != nil {
		return fmt.Errorf("%w: lookup %s: %w", modular.ErrPersistenceFailure, id, err)
	}
	return fmt.Errorf("%w: %s (persisted)", modular.ErrDuplicateModule, id)
}

func (r *ModuleRegistry) release(id, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[id] == requestID {
		delete(r.inFlight, id)
	}
}

func (r *ModuleRegistry) fail(ctx context.Context, req *RegistrationRequest, err error, errs []string, warnings []string) {
	if len(errs) == 0 {
		errs = []string{err.Error()}
	}
	r.mu.Lock()
	if req.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	r.finishLocked(req, RegistrationResult{
		State:    modular.StateFailed,
		Message:  err.Error(),
		Kind:     modular.ClassifyError(err),
		Errors:   errs,
		Warnings: warnings,
	})
	r.mu.Unlock()

	r.logger.Warn("Module registration failed", "requestID", req.RequestID, "module", req.Metadata.ID, "error", err)
	r.events.Emit(ctx, modular.EventTypeModuleFailed, map[string]any{
		"request_id": req.RequestID,
		"module_id":  req.Metadata.ID,
		"error":      err.Error(),
		"kind":       string(modular.ClassifyError(err)),
	})
	r.auditAction(ctx, store.AuditEntry{
		UserID:       req.RequesterID,
		Action:       store.ActionRegistrationFailed,
		ResourceType: "module",
		ResourceID:   req.Metadata.ID,
		Description:  err.Error(),
		Metadata:     map[string]any{"request_id": req.RequestID},
	})
}

// finishLocked makes req terminal, removes it from the pending set and
// records result in the history.
func (r *ModuleRegistry) finishLocked(req *RegistrationRequest, result RegistrationResult) {
	if req.Status.IsTerminal() {
		return
	}
	now := r.now()
	req.Status = result.State
	req.UpdatedAt = now
	if !result.Success {
		req.ErrorMessage = result.Message
	}
	delete(r.pending, req.RequestID)

	result.RequestID = req.RequestID
	result.ModuleID = req.Metadata.ID
	result.CompletedAt = now
	r.results[req.RequestID] = result
	r.history = append([]RegistrationResult{result}, r.history...)
	r.trimHistoryLocked()
	close(req.done)
}

func (r *ModuleRegistry) trimHistoryLocked() {
	limit := max(r.cfg.HistoryLimit, 1)
	for len(r.history) > limit {
		last := r.history[len(r.history)-1]
		delete(r.results, last.RequestID)
		r.history = r.history[:len(r.history)-1]
	}
}

func (r *ModuleRegistry) oldestPendingLocked() *RegistrationRequest {
	var oldest *RegistrationRequest
	for _, req := range r.pending {
		if oldest == nil || req.CreatedAt.Before(oldest.CreatedAt) ||
			(req.CreatedAt.Equal(oldest.CreatedAt) && req.RequestID < oldest.RequestID) {
			oldest = req
		}
	}
	return oldest
}

func (r *ModuleRegistry) registeredMetadata() map[string]modular.ModuleMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registeredMetadataLocked()
}

func (r *ModuleRegistry) registeredMetadataLocked() map[string]modular.ModuleMetadata {
	out := make(map[string]modular.ModuleMetadata, len(r.registered))
	for id, reg := range r.registered {
		out[id] = reg.Metadata
	}
	return out
}

func (r *ModuleRegistry) unmount(ctx context.Context, moduleID string) {
	if err := r.routes.UnregisterModule(ctx, moduleID); err != nil && !errors.Is(err, modular.ErrModuleRoutesNotFound) {
		r.logger.Warn("Failed to unmount module routes", "module", moduleID, "error", err)
	}
}

func (r *ModuleRegistry) auditAction(ctx context.Context, entry store.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if err := r.audit.LogAction(ctx, entry); err != nil {
		r.logger.Warn("Failed to write audit entry", "action", entry.Action, "module", entry.ResourceID, "error", err)
	}
}
