package events

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Handler receives one event. Handlers run synchronously during Publish
// and must return within the bus's delivery budget or they are detached.
type Handler func(Event)

// Sink receives every published event for durable, append-only retention.
// The bus requires only the append capability; format and retention are
// the sink's concern.
type Sink interface {
	Append(event Event) error
}

// Bus is a hierarchical publish/subscribe event log. Delivery is
// synchronous and in publish order: handlers for an event run before the
// publishing call returns (events published from inside a handler are
// queued and delivered after the current event reaches all subscribers,
// preserving log order). A panicking handler is isolated and reported as
// a handler_error event; a handler exceeding the delivery budget is
// detached and reported as handler_detached.
type Bus struct {
	mu         sync.Mutex
	subs       []*subscriber
	nextSubID  int
	log        []Event
	seen       map[string]map[string]struct{} // run root -> published event IDs
	queue      []Event
	delivering bool
	sink       Sink
	budget     time.Duration
}

type subscriber struct {
	id       int
	prefix   string
	handler  Handler
	detached bool
}

// Config holds event bus configuration.
type Config struct {
	Sink           Sink          // Optional append-only transcript
	DeliveryBudget time.Duration // Max time a handler may block (default: 1s, 0 = use default)
}

// DefaultDeliveryBudget is how long one handler may block one delivery.
const DefaultDeliveryBudget = time.Second

// NewBus creates a new event bus.
func NewBus(cfg *Config) *Bus {
	budget := DefaultDeliveryBudget
	var sink Sink
	if cfg != nil {
		sink = cfg.Sink
		if cfg.DeliveryBudget > 0 {
			budget = cfg.DeliveryBudget
		}
	}
	return &Bus{
		seen:   make(map[string]map[string]struct{}),
		sink:   sink,
		budget: budget,
	}
}

// Subscription is a cancellable handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  int
}

// Cancel removes the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.removeLocked(s.id)
}

// Subscribe registers a handler for all events whose run ID falls under
// prefix. An empty prefix receives every event.
func (b *Bus) Subscribe(prefix string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	b.subs = append(b.subs, &subscriber{id: b.nextSubID, prefix: prefix, handler: handler})
	return &Subscription{bus: b, id: b.nextSubID}
}

// Publish validates and appends the event to the log, forwards it to the
// sink, and delivers it to every matching subscriber. An event naming a
// ParentID that has not been published for the same run root is rejected;
// this is what guarantees no subscriber ever observes a child before its
// parent.
func (b *Bus) Publish(event Event) error {
	if event.ID == "" {
		return fmt.Errorf("event has no id (use a constructor)")
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	root := event.RunRoot()
	ids := b.seen[root]
	if event.ParentID != "" {
		if _, ok := ids[event.ParentID]; !ok {
			b.mu.Unlock()
			return fmt.Errorf("parent event %s not published for run %s", event.ParentID, root)
		}
	}
	if ids == nil {
		ids = make(map[string]struct{})
		b.seen[root] = ids
	}
	ids[event.ID] = struct{}{}
	b.log = append(b.log, event)
	b.queue = append(b.queue, event)

	if b.delivering {
		// A handler published re-entrantly; the outer Publish drains the
		// queue in order.
		b.mu.Unlock()
		return nil
	}
	b.delivering = true

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		targets := make([]*subscriber, 0, len(b.subs))
		for _, sub := range b.subs {
			if !sub.detached && next.MatchesPrefix(sub.prefix) {
				targets = append(targets, sub)
			}
		}
		b.mu.Unlock()

		if b.sink != nil {
			if err := b.sink.Append(next); err != nil {
				fmt.Fprintf(os.Stderr, "warning: event sink append failed: %v\n", err)
			}
		}
		for _, sub := range targets {
			b.deliver(sub, next)
		}

		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
	return nil
}

// deliver runs one handler with panic isolation and the delivery budget.
func (b *Bus) deliver(sub *subscriber, event Event) {
	done := make(chan interface{}, 1)
	go func() {
		defer func() { done <- recover() }()
		sub.handler(event)
	}()

	select {
	case p := <-done:
		if p != nil && event.Type != EventTypeHandlerError {
			b.reportDeliveryFault(EventTypeHandlerError, event,
				fmt.Sprintf("subscriber handler panicked: %v", p))
		}
	case <-time.After(b.budget):
		b.mu.Lock()
		sub.detached = true
		b.removeLocked(sub.id)
		b.mu.Unlock()
		if event.Type != EventTypeHandlerDetached {
			b.reportDeliveryFault(EventTypeHandlerDetached, event,
				fmt.Sprintf("subscriber on %q exceeded delivery budget %s and was detached", sub.prefix, b.budget))
		}
	}
}

// reportDeliveryFault publishes an error event describing a handler
// failure without interrupting delivery to other subscribers.
func (b *Bus) reportDeliveryFault(typ EventType, cause Event, message string) {
	fault := NewEvent(cause.RunID, cause.StepID, typ, SeverityError, message)
	fault.ParentID = cause.ID
	fault.Payload = map[string]interface{}{"cause_event_type": string(cause.Type)}
	if err := b.Publish(fault); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to publish %s event: %v\n", typ, err)
	}
}

func (b *Bus) removeLocked(id int) {
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Replay returns a copy of the logged events matching the filter, in
// publish order. The log is retained for the lifetime of the bus for
// audit and replay.
func (b *Bus) Replay(filter EventFilter) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for i := range b.log {
		if filter.Matches(&b.log[i]) {
			out = append(out, b.log[i])
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
	}
	return out
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
