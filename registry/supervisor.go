package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Supervisor owns every goroutine the registry spawns. Tasks receive a
// context that is cancelled on Shutdown; Shutdown waits for them to return.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger modular.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
	running map[uint64]string
	nextID  uint64

	failures atomic.Int64
}

// NewSupervisor creates a supervisor whose tasks inherit parent's values
// but not its cancellation.
func NewSupervisor(parent context.Context, logger modular.Logger) *Supervisor {
	if logger == nil {
		logger = modular.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		running: make(map[uint64]string),
	}
}

// Go runs fn in a supervised goroutine. Errors and panics are logged and
// counted. It returns ErrRegistryStopped after Shutdown has begun.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start task %s", modular.ErrRegistryStopped, name)
	}
	s.nextID++
	id := s.nextID
	s.running[id] = name
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.failures.Add(1)
				s.logger.Error("Supervised task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.failures.Add(1)
			s.logger.Error("Supervised task failed", "task", name, "error", err)
		}
	}()
	return nil
}

// Count returns the number of running tasks.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Failures returns how many tasks have failed or panicked.
func (s *Supervisor) Failures() int64 {
	return s.failures.Load()
}

// Context is cancelled when Shutdown starts.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Shutdown refuses new tasks, cancels running ones and waits for them until
// ctx is done. Calling it again waits again.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		names := make([]string, 0, len(s.running))
		for _, n := range s.running {
			names = append(names, n)
		}
		s.mu.Unlock()
		s.logger.Warn("Supervisor shutdown timed out", "remaining", names)
		return fmt.Errorf("supervisor shutdown: %d tasks still running: %w", len(names), ctx.Err())
	}
}
