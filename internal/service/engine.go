// Package service runs the engine worker and exposes it over a unix
// domain socket: submit a mission, poll its result, stream its events.
package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caucus-ai/caucus/internal/cost"
	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/queue"
	"github.com/caucus-ai/caucus/internal/types"
)

// RunFunc executes one directive to completion and always returns a
// result. The engine does not retry failed missions; the result carries
// the error.
type RunFunc func(ctx context.Context, directive *types.Directive) *types.DirectiveResult

// ResultStore persists completed mission results. *storage.Storage
// satisfies it.
type ResultStore interface {
	SaveResult(ctx context.Context, result *types.DirectiveResult) error
	GetResult(ctx context.Context, runID string) (*types.DirectiveResult, error)
}

// PruneController clears active prune suggestions so an operator can
// override the evaluator. *pruning.Evaluator satisfies it.
type PruneController interface {
	Clear(runID, teamID, objective string, teamCtx map[string]string) error
}

// DefaultPollInterval is how often the worker checks the queue when it
// is empty.
const DefaultPollInterval = 200 * time.Millisecond

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Queue        queue.Queue  // Required
	Bus          *events.Bus  // Required
	Run          RunFunc      // Required
	Results      ResultStore     // Optional: results are kept in memory when nil
	Ledger       *cost.Ledger    // Optional: spend surfaces in Status when set
	Pruner       PruneController // Optional: enables the clear command
	PollInterval time.Duration
}

// Engine drains the directive queue one mission at a time and records
// results. Missions run sequentially; concurrency lives inside the
// orchestrator, not across missions.
type Engine struct {
	queue        queue.Queue
	bus          *events.Bus
	run          RunFunc
	results      ResultStore
	ledger       *cost.Ledger
	pruner       PruneController
	pollInterval time.Duration

	mu        sync.Mutex
	active    map[string]bool
	completed map[string]*types.DirectiveResult
	running   bool

	stopCh chan struct{}
	doneCh chan struct{}
	cancel context.CancelFunc
}

// NewEngine creates an engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Engine{
		queue:        cfg.Queue,
		bus:          cfg.Bus,
		run:          cfg.Run,
		results:      cfg.Results,
		ledger:       cfg.Ledger,
		pruner:       cfg.Pruner,
		pollInterval: pollInterval,
		active:       make(map[string]bool),
		completed:    make(map[string]*types.DirectiveResult),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start launches the worker loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go e.workerLoop(workerCtx)
	return nil
}

// Stop cancels the in-flight mission and waits for the worker to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.cancel()
	<-e.doneCh
}

func (e *Engine) workerLoop(ctx context.Context) {
	defer close(e.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		directive, err := e.queue.Dequeue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine: dequeue error: %v\n", err)
			directive = nil
		}
		if directive == nil {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-time.After(e.pollInterval):
			}
			continue
		}

		e.execute(ctx, directive)
	}
}

func (e *Engine) execute(ctx context.Context, directive *types.Directive) {
	runID := directive.ID
	e.mu.Lock()
	e.active[runID] = true
	e.mu.Unlock()

	result := e.run(ctx, directive)
	if result == nil {
		result = &types.DirectiveResult{
			RunID:       runID,
			Success:     false,
			Error:       "mission produced no result",
			CompletedAt: time.Now(),
		}
	}

	e.mu.Lock()
	delete(e.active, runID)
	e.completed[runID] = result
	e.mu.Unlock()

	if e.results != nil {
		if err := e.results.SaveResult(ctx, result); err != nil {
			fmt.Fprintf(os.Stderr, "engine: failed to persist result for %s: %v\n", runID, err)
		}
	}
}

// Submit enqueues a mission and returns its run ID. The run ID doubles
// as the event topic for the whole mission subtree.
func (e *Engine) Submit(ctx context.Context, goal string, missionCtx map[string]string) (string, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "", fmt.Errorf("goal is empty")
	}
	runID := "run-" + uuid.New().String()[:8]
	directive := &types.Directive{
		ID:         runID,
		Goal:       goal,
		Context:    missionCtx,
		EnqueuedAt: time.Now(),
	}
	if err := e.queue.Enqueue(ctx, directive); err != nil {
		return "", fmt.Errorf("failed to enqueue directive: %w", err)
	}
	if err := e.bus.Publish(events.NewEvent(runID, "", events.EventTypeMissionSubmitted, events.SeverityInfo,
		fmt.Sprintf("mission submitted: %s", goal))); err != nil {
		fmt.Fprintf(os.Stderr, "engine: failed to publish submit event: %v\n", err)
	}
	return runID, nil
}

// Result returns the result for a run ID, or nil if the mission is
// still pending or unknown to this engine.
func (e *Engine) Result(ctx context.Context, runID string) (*types.DirectiveResult, error) {
	e.mu.Lock()
	result := e.completed[runID]
	e.mu.Unlock()
	if result != nil {
		return result, nil
	}
	if e.results != nil {
		return e.results.GetResult(ctx, runID)
	}
	return nil, nil
}

// Status reports queue depth and mission counts.
func (e *Engine) Status(ctx context.Context) map[string]interface{} {
	depth, err := e.queue.Len(ctx)
	if err != nil {
		depth = -1
	}
	e.mu.Lock()
	active := make([]string, 0, len(e.active))
	for runID := range e.active {
		active = append(active, runID)
	}
	completed := len(e.completed)
	running := e.running
	e.mu.Unlock()

	status := map[string]interface{}{
		"running":   running,
		"queued":    depth,
		"active":    active,
		"completed": completed,
	}
	if e.ledger != nil {
		status["spend"] = e.ledger.Total()
		status["budget"] = e.ledger.Status().String()
	}
	return status
}

// ClearPrune lifts an active prune suggestion for a (team, objective)
// pair so the next invocation runs again.
func (e *Engine) ClearPrune(runID, teamID, objective string, teamCtx map[string]string) error {
	if e.pruner == nil {
		return fmt.Errorf("prune control is not configured")
	}
	if strings.TrimSpace(teamID) == "" {
		return fmt.Errorf("team is required")
	}
	return e.pruner.Clear(runID, teamID, objective, teamCtx)
}

// Bus exposes the event bus for streaming clients.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}
