package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

func newDirective(goal string) *types.Directive {
	return &types.Directive{
		ID:         uuid.New().String(),
		Goal:       goal,
		EnqueuedAt: time.Now(),
	}
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, goal := range []string{"first", "second", "third"} {
		if err := q.Enqueue(ctx, newDirective(goal)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 waiting, got %d", n)
	}

	for _, want := range []string{"first", "second", "third"} {
		directive, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if directive == nil || directive.Goal != want {
			t.Errorf("Expected goal %q, got %+v", want, directive)
		}
	}

	empty, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if empty != nil {
		t.Errorf("Expected nil on empty queue, got %+v", empty)
	}
}

// failingQueue errors on every call.
type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *types.Directive) error { return errors.New("backend down") }
func (failingQueue) Dequeue(context.Context) (*types.Directive, error) {
	return nil, errors.New("backend down")
}
func (failingQueue) Len(context.Context) (int, error) { return 0, errors.New("backend down") }
func (failingQueue) Close() error                     { return nil }

func TestFallbackDegradesOnce(t *testing.T) {
	bus := events.NewBus(nil)
	q := NewFallback(failingQueue{}, bus, "")
	ctx := context.Background()

	if err := q.Enqueue(ctx, newDirective("survive the outage")); err != nil {
		t.Fatalf("Enqueue failed after fallback: %v", err)
	}
	if !q.Degraded() {
		t.Error("Expected degraded mode after backend failure")
	}

	directive, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed after fallback: %v", err)
	}
	if directive == nil || directive.Goal != "survive the outage" {
		t.Errorf("Expected the enqueued directive back, got %+v", directive)
	}

	// A second failure must not publish another degraded_mode event.
	if err := q.Enqueue(ctx, newDirective("again")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	degradedEvents := bus.Replay(events.EventFilter{Types: []events.EventType{events.EventTypeDegradedMode}})
	if len(degradedEvents) != 1 {
		t.Errorf("Expected exactly 1 degraded_mode event, got %d", len(degradedEvents))
	}
}

func TestFallbackPassesThroughHealthyBackend(t *testing.T) {
	q := NewFallback(NewMemoryQueue(), events.NewBus(nil), "")
	ctx := context.Background()

	if err := q.Enqueue(ctx, newDirective("healthy")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if q.Degraded() {
		t.Error("Healthy backend must not degrade")
	}
	directive, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if directive == nil || directive.Goal != "healthy" {
		t.Errorf("Expected directive back, got %+v", directive)
	}
}
