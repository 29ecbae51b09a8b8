package engine

import (
	"sync"
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	EventInteractionRecorded EventType = "interaction_recorded"
	EventFeedbackReceived    EventType = "feedback_received"
	EventExactMatchHit       EventType = "exact_match_hit"
	EventKnowledgeUpserted   EventType = "knowledge_upserted"
	EventMemoryPruned        EventType = "memory_pruned"
)

// Event represents an engine event with associated data.
type Event struct {
	Type          EventType
	Timestamp     time.Time
	InteractionID string
	Data          map[string]interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus manages event publication and subscription.
// It provides a decoupled way for callers to observe engine activity.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not already set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific handlers
	if handlers, ok := eb.handlers[event.Type]; ok {
		for _, handler := range handlers {
			handler(event)
		}
	}

	// Notify all-event handlers
	for _, handler := range eb.allHandlers {
		handler(event)
	}
}
