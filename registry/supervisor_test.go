package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

func TestSupervisor_ShutdownWaitsForTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(context.Background(), nil)
	started := make(chan struct{})
	require.NoError(t, s.Go("waiter", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.Count())
	assert.Zero(t, s.Failures(), "errors after cancellation are not failures")

	err := s.Go("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, modular.ErrRegistryStopped)
}

func TestSupervisor_CountsFailuresAndPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(context.Background(), nil)
	require.NoError(t, s.Go("fails", func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, s.Go("panics", func(context.Context) error { panic("kaboom") }))

	require.Eventually(t, func() bool { return s.Failures() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSupervisor_ShutdownTimeout(t *testing.T) {
	s := NewSupervisor(context.Background(), nil)
	release := make(chan struct{})
	require.NoError(t, s.Go("stubborn", func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestRegistry_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	r, err := New(*cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	ctx := context.Background()
	for _, id := range []string{"alpha", "bravo"} {
		reqID, err := r.RegisterModule(ctx, meta(id), "tester")
		require.NoError(t, err)
		_, err = r.WaitForRequest(ctx, reqID)
		require.NoError(t, err)
	}
	require.NoError(t, r.Stop(ctx))
}
