package queue

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

// Fallback wraps a durable queue and fails over to an in-memory queue
// when the backend errors. The first failover publishes a degraded_mode
// event. Directives already in the durable backend stay there; only new
// traffic moves to the fallback.
type Fallback struct {
	primary  Queue
	fallback Queue
	bus      *events.Bus
	runID    string

	mu       sync.Mutex
	degraded bool
}

// NewFallback creates a fallback wrapper. runID is the topic degraded
// events are published under ("system" if empty).
func NewFallback(primary Queue, bus *events.Bus, runID string) *Fallback {
	if runID == "" {
		runID = "system"
	}
	return &Fallback{
		primary:  primary,
		fallback: NewMemoryQueue(),
		bus:      bus,
		runID:    runID,
	}
}

func (f *Fallback) degrade(err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()
	if already {
		return
	}
	wrapped := &types.BackendUnavailableError{Backend: "queue", Err: err}
	fmt.Fprintf(os.Stderr, "warning: %v (falling back to in-memory queue)\n", wrapped)
	if f.bus != nil {
		if perr := f.bus.Publish(events.NewDegradedModeEvent(f.runID, "queue", err.Error())); perr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to publish degraded mode event: %v\n", perr)
		}
	}
}

// Degraded reports whether the wrapper has failed over.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *Fallback) queue() Queue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.fallback
	}
	return f.primary
}

// Enqueue adds a directive, failing over on backend error.
func (f *Fallback) Enqueue(ctx context.Context, directive *types.Directive) error {
	if err := f.queue().Enqueue(ctx, directive); err != nil {
		f.degrade(err)
		return f.fallback.Enqueue(ctx, directive)
	}
	return nil
}

// Dequeue removes the oldest directive, failing over on backend error.
func (f *Fallback) Dequeue(ctx context.Context) (*types.Directive, error) {
	directive, err := f.queue().Dequeue(ctx)
	if err != nil {
		f.degrade(err)
		return f.fallback.Dequeue(ctx)
	}
	return directive, nil
}

// Len reports the waiting count, failing over on backend error.
func (f *Fallback) Len(ctx context.Context) (int, error) {
	n, err := f.queue().Len(ctx)
	if err != nil {
		f.degrade(err)
		return f.fallback.Len(ctx)
	}
	return n, nil
}

// Close closes both queues.
func (f *Fallback) Close() error {
	ferr := f.fallback.Close()
	if err := f.primary.Close(); err != nil {
		return err
	}
	return ferr
}
