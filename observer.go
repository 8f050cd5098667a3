package modular

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of registry and routing events. Events are
// CloudEvents so they can be forwarded to external systems unchanged.
type Observer interface {
	// OnEvent is called for every event the observer subscribed to.
	// Observers should return quickly; they run on their own goroutine.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject maintains observers and notifies them of events.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty the observer
	// receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all interested observers without
	// blocking the caller on observer work.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the registry and routing manager.
const (
	EventTypeModuleRegistered    = "com.modular.registry.module.registered"
	EventTypeModuleDeregistered  = "com.modular.registry.module.deregistered"
	EventTypeModuleEvicted       = "com.modular.registry.module.evicted"
	EventTypeModuleFailed        = "com.modular.registry.module.failed"
	EventTypeModuleHealthChanged = "com.modular.registry.module.health_changed"

	EventTypeRequestQueued  = "com.modular.registry.request.queued"
	EventTypeRequestEvicted = "com.modular.registry.request.evicted"

	EventTypeRoutesMounted   = "com.modular.routing.routes.mounted"
	EventTypeRoutesUnmounted = "com.modular.routing.routes.unmounted"
)

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent calls the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID returns the observer id.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
