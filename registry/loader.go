package registry

import (
	"fmt"
	"sync"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Loader maps entry points to module factories.
type Loader struct {
	mu        sync.RWMutex
	factories map[string]modular.Factory
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{factories: make(map[string]modular.Factory)}
}

// Register binds entryPoint to factory, replacing any previous binding.
func (l *Loader) Register(entryPoint string, factory modular.Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[entryPoint] = factory
}

// HasFactory reports whether entryPoint can be loaded.
func (l *Loader) HasFactory(entryPoint string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.factories[entryPoint]
	return ok
}

// Load builds the module named by metadata.EntryPoint with its default
// configuration. A factory that panics is reported as a load failure.
func (l *Loader) Load(metadata modular.ModuleMetadata) (mod modular.Module, err error) {
	l.mu.RLock()
	factory, ok := l.factories[metadata.EntryPoint]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", modular.ErrEntryPointNotFound, metadata.EntryPoint)
	}

	defer func() {
		if r := recover(); r != nil {
			mod, err = nil, fmt.Errorf("%w: factory for %s panicked: %v", modular.ErrModuleLoadFailed, metadata.ID, r)
		}
	}()
	mod, err = factory(modular.MergeConfig(metadata.DefaultConfig, nil))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", modular.ErrModuleLoadFailed, metadata.ID, err)
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: factory for %s returned nil", modular.ErrModuleLoadFailed, metadata.ID)
	}
	return mod, nil
}
