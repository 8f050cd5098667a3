package modular

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventBus is the Subject shared by the registry and routing manager.
// Observers are notified on their own goroutines; a panicking or failing
// observer is logged and otherwise ignored.
type EventBus struct {
	source    string
	logger    Logger
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	wg        sync.WaitGroup
}

// NewEventBus creates a bus whose events carry source as CloudEvents source.
func NewEventBus(source string, logger Logger) *EventBus {
	if logger == nil {
		logger = NopLogger{}
	}
	return &EventBus{
		source:    source,
		logger:    logger,
		observers: make(map[string]*observerRegistration),
	}
}

// RegisterObserver implements Subject.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	b.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver implements Subject.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, observer.ObserverID())
	return nil
}

// NotifyObservers implements Subject.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, reg := range b.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		b.wg.Add(1)
		go func(reg *observerRegistration) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Observer panicked", "observerID", reg.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := reg.observer.OnEvent(ctx, event); err != nil {
				b.logger.Error("Observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}(reg)
	}
	return nil
}

// Emit builds an event from the bus source and notifies observers.
func (b *EventBus) Emit(ctx context.Context, eventType string, data any) {
	if err := b.NotifyObservers(ctx, NewCloudEvent(eventType, b.source, data, nil)); err != nil {
		b.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

// GetObservers implements Subject.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, reg := range b.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}

// Wait blocks until all in-flight observer notifications finish.
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// EventEmitter is the narrow side of EventBus used by components that only publish.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, data any)
}

// NopEmitter drops events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}
