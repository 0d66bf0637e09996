// Package queue holds pending mission directives. The engine worker
// drains the queue one directive at a time; backends are pluggable so
// a Redis deployment can survive engine restarts while tests and
// single-process runs use the in-memory queue.
package queue

import (
	"context"
	"sync"

	"github.com/caucus-ai/caucus/internal/types"
)

// Queue is the pluggable directive queue. Dequeue returns (nil, nil)
// when the queue is empty; backends never block waiting for work.
type Queue interface {
	Enqueue(ctx context.Context, directive *types.Directive) error
	Dequeue(ctx context.Context) (*types.Directive, error)
	// Len reports how many directives are waiting
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is a FIFO queue held in process memory.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []*types.Directive
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue appends a directive.
func (q *MemoryQueue) Enqueue(_ context.Context, directive *types.Directive) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, directive)
	return nil
}

// Dequeue removes and returns the oldest directive, or (nil, nil) when
// the queue is empty.
func (q *MemoryQueue) Dequeue(_ context.Context) (*types.Directive, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	directive := q.pending[0]
	q.pending = q.pending[1:]
	return directive, nil
}

// Len reports how many directives are waiting.
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

// Close is a no-op.
func (q *MemoryQueue) Close() error {
	return nil
}
