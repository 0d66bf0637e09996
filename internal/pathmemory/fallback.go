package pathmemory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

// Fallback wraps a durable store and fails over to an in-memory store
// when the backend errors. The first failover publishes a degraded_mode
// event; degradation is never silent.
type Fallback struct {
	primary  Store
	fallback Store
	bus      *events.Bus
	runID    string

	mu       sync.Mutex
	degraded bool
}

// NewFallback creates a fallback wrapper. runID is the topic degraded
// events are published under ("system" if empty).
func NewFallback(primary Store, bus *events.Bus, runID string) *Fallback {
	if runID == "" {
		runID = "system"
	}
	return &Fallback{
		primary:  primary,
		fallback: NewMemoryStore(nil),
		bus:      bus,
		runID:    runID,
	}
}

// active returns the store to use, entering degraded mode if err signals
// a backend failure.
func (f *Fallback) degrade(err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()
	if already {
		return
	}
	wrapped := &types.BackendUnavailableError{Backend: "path_memory", Err: err}
	fmt.Fprintf(os.Stderr, "warning: %v (falling back to in-memory path memory)\n", wrapped)
	if f.bus != nil {
		if perr := f.bus.Publish(events.NewDegradedModeEvent(f.runID, "path_memory", err.Error())); perr != nil {
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

func (f *Fallback) store() Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.fallback
	}
	return f.primary
}

// Record stores an entry, failing over on backend error.
func (f *Fallback) Record(ctx context.Context, entry Entry) error {
	if err := f.store().Record(ctx, entry); err != nil {
		f.degrade(err)
		return f.fallback.Record(ctx, entry)
	}
	return nil
}

// Lookup reads an entry, failing over on backend error.
func (f *Fallback) Lookup(ctx context.Context, signature string) (*Entry, error) {
	entry, err := f.store().Lookup(ctx, signature)
	if err != nil {
		f.degrade(err)
		return f.fallback.Lookup(ctx, signature)
	}
	return entry, nil
}

// NegativeLookup checks for a known dead end, failing over on backend error.
func (f *Fallback) NegativeLookup(ctx context.Context, signature string) (bool, error) {
	neg, err := f.store().NegativeLookup(ctx, signature)
	if err != nil {
		f.degrade(err)
		return f.fallback.NegativeLookup(ctx, signature)
	}
	return neg, nil
}

// RecentByTeam lists recent entries, failing over on backend error.
func (f *Fallback) RecentByTeam(ctx context.Context, teamID string, limit int) ([]Entry, error) {
	entries, err := f.store().RecentByTeam(ctx, teamID, limit)
	if err != nil {
		f.degrade(err)
		return f.fallback.RecentByTeam(ctx, teamID, limit)
	}
	return entries, nil
}

// Evict removes an entry, failing over on backend error.
func (f *Fallback) Evict(ctx context.Context, signature string) error {
	if err := f.store().Evict(ctx, signature); err != nil {
		f.degrade(err)
		return f.fallback.Evict(ctx, signature)
	}
	return nil
}

// Sweep sweeps the active store.
func (f *Fallback) Sweep(ctx context.Context) (int, error) {
	n, err := f.store().Sweep(ctx)
	if err != nil {
		f.degrade(err)
		return f.fallback.Sweep(ctx)
	}
	return n, nil
}

// Close closes both stores.
func (f *Fallback) Close() error {
	ferr := f.fallback.Close()
	if err := f.primary.Close(); err != nil {
		return err
	}
	return ferr
}
