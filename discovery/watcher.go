package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/registry"
)

// Requester is recorded as the actor of registrations made from manifests.
const Requester = "discovery"

const defaultDebounce = 250 * time.Millisecond

// Registrar is the part of the registry the watcher drives.
type Registrar interface {
	RegisterModule(ctx context.Context, metadata modular.ModuleMetadata, requesterID string, opts ...registry.RegisterOption) (string, error)
	DeregisterModule(ctx context.Context, moduleID, requesterID string, force bool) (bool, error)
	IsRegistered(moduleID string) bool
}

// Watcher registers a module for every manifest created or written in a
// directory and deregisters it when the manifest is removed. Events for the
// same file are debounced.
type Watcher struct {
	dir       string
	debounce  time.Duration
	registrar Registrar
	logger    modular.Logger
	fsw       *fsnotify.Watcher
	started   atomic.Bool

	mu     sync.Mutex
	timers map[string]*time.Timer
	// known maps manifest path to the module id it registered.
	known map[string]string
}

// NewWatcher watches cfg.Dir, creating it if needed.
func NewWatcher(cfg modular.DiscoveryConfig, registrar Registrar, logger modular.Logger) (*Watcher, error) {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("discovery: create directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("discovery: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close() //nolint:errcheck
		return nil, fmt.Errorf("discovery: watch %s: %w", dir, err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:       dir,
		debounce:  debounce,
		registrar: registrar,
		logger:    logger,
		fsw:       fsw,
		timers:    make(map[string]*time.Timer),
		known:     make(map[string]string),
	}, nil
}

// Dir returns the absolute directory being watched.
func (w *Watcher) Dir() string { return w.dir }

// Scan registers every manifest already present, in name order.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("discovery: read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsManifest(e.Name()) {
			continue
		}
		w.Apply(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// Run processes filesystem events until ctx is cancelled. It must be called
// once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("discovery: Run called more than once")
	}
	defer func() {
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		clear(w.timers)
		w.mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Failed to close manifest watcher", "error", err)
		}
	}()

	w.logger.Info("Watching module manifests", "dir", w.dir, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("discovery: fsnotify event channel closed")
			}
			if !IsManifest(evt.Name) || (evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write)) {
				continue
			}
			w.schedule(ctx, evt.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("discovery: fsnotify error channel closed")
			}
			w.logger.Error("Manifest watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.Apply(ctx, path)
	})
}

// Apply reconciles the registry with the current state of one manifest
// file: a present manifest is registered, a missing one deregistered.
func (w *Watcher) Apply(ctx context.Context, path string) {
	m, err := LoadManifest(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.removed(ctx, path)
		return
	}
	if err != nil {
		w.logger.Error("Failed to load module manifest", "path", path, "error", err)
		return
	}

	w.mu.Lock()
	prev, seen := w.known[path]
	w.mu.Unlock()
	if seen && prev != m.ID {
		w.logger.Warn("Manifest changed module id; deregistering previous module", "path", path, "previous", prev, "module", m.ID)
		w.removed(ctx, path)
	}
	if w.registrar.IsRegistered(m.ID) {
		w.logger.Debug("Module from manifest already registered", "path", path, "module", m.ID)
		w.remember(path, m.ID)
		return
	}

	requestID, err := w.registrar.RegisterModule(ctx, m, Requester)
	if err != nil {
		w.logger.Error("Failed to submit manifest registration", "path", path, "module", m.ID, "error", err)
		return
	}
	w.remember(path, m.ID)
	w.logger.Info("Submitted module from manifest", "path", path, "module", m.ID, "requestID", requestID)
}

func (w *Watcher) remember(path, id string) {
	w.mu.Lock()
	w.known[path] = id
	w.mu.Unlock()
}

func (w *Watcher) removed(ctx context.Context, path string) {
	w.mu.Lock()
	id, ok := w.known[path]
	delete(w.known, path)
	w.mu.Unlock()
	if !ok {
		return
	}
	if _, err := w.registrar.DeregisterModule(ctx, id, Requester, false); err != nil {
		w.logger.Warn("Failed to deregister module for removed manifest", "path", path, "module", id, "error", err)
		return
	}
	w.logger.Info("Deregistered module for removed manifest", "path", path, "module", id)
}

// Known returns the manifest paths currently mapped to modules.
func (w *Watcher) Known() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.known))
	for p := range w.known {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
