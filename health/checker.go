// Package health runs a fixed battery of probes against a registered module
// and aggregates them into a severity-ranked status.
package health

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/resolver"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/validator"
)

// Probe names.
const (
	CheckLoadable      = "loadable"
	CheckEntryPoint    = "entry_point"
	CheckDependencies  = "dependencies"
	CheckConfiguration = "configuration"
)

// Target is what a probe inspects.
type Target struct {
	Metadata modular.ModuleMetadata

	// Instance is nil for metadata-only registrations.
	Instance modular.Module
}

// Catalog answers questions about the rest of the registry.
type Catalog interface {
	// HasFactory reports whether the loader can build entryPoint.
	HasFactory(entryPoint string) bool

	// Lookup returns the metadata of a registered module.
	Lookup(moduleID string) (modular.ModuleMetadata, bool)
}

// Probe is one health check.
type Probe interface {
	Name() string
	Severity() modular.Severity
	Check(ctx context.Context, target Target) error
}

type probeFunc struct {
	name     string
	severity modular.Severity
	fn       func(ctx context.Context, target Target) error
}

func (p probeFunc) Name() string                                   { return p.name }
func (p probeFunc) Severity() modular.Severity                     { return p.severity }
func (p probeFunc) Check(ctx context.Context, target Target) error { return p.fn(ctx, target) }

// NewProbe adapts a function to Probe.
func NewProbe(name string, severity modular.Severity, fn func(ctx context.Context, target Target) error) Probe {
	return probeFunc{name: name, severity: severity, fn: fn}
}

// ModuleHealthChecker runs probes with a per-probe timeout.
type ModuleHealthChecker struct {
	probes      []Probe
	timeout     time.Duration
	concurrency int
	logger      modular.Logger
}

// New builds a checker with the four standard probes.
func New(cfg modular.HealthConfig, catalog Catalog, logger modular.Logger) *ModuleHealthChecker {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &ModuleHealthChecker{
		probes:      StandardProbes(catalog),
		timeout:     cfg.ProbeTimeout,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// StandardProbes returns loadable, entry_point, dependencies and configuration.
func StandardProbes(catalog Catalog) []Probe {
	return []Probe{
		NewProbe(CheckLoadable, modular.SeverityError, func(ctx context.Context, t Target) error {
			if t.Instance != nil {
				return t.Instance.HealthCheck(ctx)
			}
			if t.Metadata.EntryPoint != "" && !catalog.HasFactory(t.Metadata.EntryPoint) {
				return fmt.Errorf("no loader for entry point %q", t.Metadata.EntryPoint)
			}
			return nil
		}),
		NewProbe(CheckEntryPoint, modular.SeverityWarning, func(_ context.Context, t Target) error {
			switch {
			case t.Metadata.EntryPoint == "":
				return fmt.Errorf("entry point not declared")
			case t.Instance == nil && !catalog.HasFactory(t.Metadata.EntryPoint):
				return fmt.Errorf("entry point %q is not accessible", t.Metadata.EntryPoint)
			}
			return nil
		}),
		NewProbe(CheckDependencies, modular.SeverityError, func(_ context.Context, t Target) error {
			for _, dep := range t.Metadata.Dependencies {
				if !dep.Required {
					continue
				}
				m, ok := catalog.Lookup(dep.ModuleID)
				if !ok {
					return fmt.Errorf("required dependency %s is not registered", dep.ModuleID)
				}
				if ok, err := resolver.Satisfies(m.Version, dep.VersionRequirement); err != nil || !ok {
					return fmt.Errorf("dependency %s %s does not satisfy %s", dep.ModuleID, m.Version, dep.VersionRequirement)
				}
			}
			return nil
		}),
		NewProbe(CheckConfiguration, modular.SeverityWarning, func(_ context.Context, t Target) error {
			return validator.ValidateConfig(t.Metadata.ConfigSchema, t.Metadata.DefaultConfig)
		}),
	}
}

// WithProbes replaces the probe set.
func (c *ModuleHealthChecker) WithProbes(probes ...Probe) *ModuleHealthChecker {
	c.probes = probes
	return c
}

// Check runs every probe and aggregates the results.
func (c *ModuleHealthChecker) Check(ctx context.Context, target Target) (modular.HealthStatus, map[string]modular.CheckResult) {
	results := make(map[string]modular.CheckResult, len(c.probes))
	for _, p := range c.probes {
		results[p.Name()] = c.run(ctx, p, target)
	}
	return modular.AggregateHealth(results), results
}

// run executes one probe. A probe that panics or overruns its timeout
// counts as an error-severity failure.
func (c *ModuleHealthChecker) run(ctx context.Context, p Probe, target Target) modular.CheckResult {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Health probe panicked", "module", target.Metadata.ID, "probe", p.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("%w: %v", modular.ErrHealthProbePanicked, r)
			}
		}()
		done <- p.Check(ctx, target)
	}()

	var err error
	severity := p.Severity()
	select {
	case err = <-done:
		if errors.Is(err, modular.ErrHealthProbePanicked) {
			severity = modular.SeverityError
		}
	case <-ctx.Done():
		err = fmt.Errorf("%w: probe %s: %w", modular.ErrHealthCheckFailure, p.Name(), ctx.Err())
		severity = modular.SeverityError
	}

	res := modular.CheckResult{
		Passed:    err == nil,
		Severity:  severity,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Result is the outcome for one module in CheckMany.
type Result struct {
	ModuleID string
	Status   modular.HealthStatus
	Checks   map[string]modular.CheckResult
}

// CheckMany checks every target with at most the configured number of
// modules in flight.
func (c *ModuleHealthChecker) CheckMany(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	var mu sync.Mutex
	for i, t := range targets {
		g.Go(func() error {
			status, checks := c.Check(gctx, t)
			mu.Lock()
			results[i] = Result{ModuleID: t.Metadata.ID, Status: status, Checks: checks}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
