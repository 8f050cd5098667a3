package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/discovery"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/httpapi"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/registry"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/store"
)

// EventSource is the CloudEvents source of everything modhub emits.
const EventSource = "modhub"

// NewServeCommand creates the serve command.
func NewServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the registry and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, logger, nil)
		},
	}
}

// Serve runs modhub until ctx is cancelled. If ready is non-nil it receives
// the listener address once the HTTP server accepts connections.
func Serve(ctx context.Context, cfg *modular.Config, logger modular.Logger, ready chan<- net.Addr) error {
	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           app.api,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if err := app.registry.Start(ctx); err != nil {
		ln.Close() //nolint:errcheck
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", ln.Addr().String())
		if ready != nil {
			ready <- ln.Addr()
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if app.watcher != nil {
		g.Go(func() error { return app.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Registry.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down")
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, app.registry.Stop(shutdownCtx))
	})
	return g.Wait()
}

type application struct {
	registry *registry.ModuleRegistry
	api      *httpapi.Server
	watcher  *discovery.Watcher
	backend  *store.Backend
	events   *modular.EventBus
}

func (a *application) close() {
	a.events.Wait()
	_ = a.backend.Close()
}

// build wires the collaborators together.
func build(ctx context.Context, cfg *modular.Config, logger modular.Logger) (*application, error) {
	events := modular.NewEventBus(EventSource, logger)
	if err := events.RegisterObserver(eventLogger(logger)); err != nil {
		return nil, err
	}

	backend, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(*cfg,
		registry.WithLogger(logger),
		registry.WithEvents(events),
		registry.WithStore(backend.Modules),
		registry.WithAuditSink(backend.Audit),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if backend.Metrics != nil {
		reg.Routes().Metrics().SetSink(backend.Metrics)
	}
	registerBuiltins(reg.Loader())

	app := &application{
		registry: reg,
		api:      httpapi.New(reg, httpapi.WithLogger(logger)),
		backend:  backend,
		events:   events,
	}

	if cfg.Discovery.Enabled {
		w, err := discovery.NewWatcher(cfg.Discovery, reg, logger)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		if err := w.Scan(ctx); err != nil {
			logger.Warn("Initial manifest scan failed", "dir", w.Dir(), "error", err)
		}
		app.watcher = w
	}
	return app, nil
}

// eventLogger records every lifecycle event at debug level.
func eventLogger(logger modular.Logger) modular.Observer {
	return modular.NewFunctionalObserver("event-logger", func(_ context.Context, event cloudevents.Event) error {
		logger.Debug("Event", "type", event.Type(), "id", event.ID(), "time", event.Time().Format(time.RFC3339Nano))
		return nil
	})
}
