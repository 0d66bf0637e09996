// Package runner executes one team invocation with timeout, retry, and
// result normalization. Invocation failures never escape as errors; they
// become dead_end or timeout outputs and the mission continues.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/caucus-ai/caucus/internal/cost"
	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/pathmemory"
	"github.com/caucus-ai/caucus/internal/pruning"
	"github.com/caucus-ai/caucus/internal/types"
)

// Config holds team runner configuration.
type Config struct {
	Store  pathmemory.Store   // Required: path signature recording
	Pruner *pruning.Evaluator // Required: prune checks and novelty scoring
	Bus    *events.Bus        // Required: progress events
	Ledger *cost.Ledger       // Optional: spend accounting and budget enforcement

	Timeout           time.Duration // Per-invocation deadline (default: 60s)
	MaxRetries        int           // Retries on invocation error, not on timeout (default: 2)
	InitialBackoff    time.Duration // First retry delay (default: 1s)
	BackoffMultiplier float64       // Delay growth per retry (default: 2.0)
	MaxConcurrent     int64         // Concurrent invocations across all teams (default: 4, 0 = default)
	RatePerSecond     float64       // Invocation rate limit (default: 0 = unlimited)
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           60 * time.Second,
		MaxRetries:        2,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxConcurrent:     4,
	}
}

// Runner invokes teams and normalizes their results.
type Runner struct {
	store   pathmemory.Store
	pruner  *pruning.Evaluator
	bus     *events.Bus
	ledger  *cost.Ledger
	cfg     *Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// New creates a team runner.
func New(cfg *Config) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("path memory store is required")
	}
	if cfg.Pruner == nil {
		return nil, fmt.Errorf("pruning evaluator is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Runner{
		store:   cfg.Store,
		pruner:  cfg.Pruner,
		bus:     cfg.Bus,
		ledger:  cfg.Ledger,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		limiter: limiter,
	}, nil
}

// Run executes one team against an objective and returns the normalized
// output. It always returns a TeamOutput; invocation errors surface as
// status values, never as Go errors past this boundary.
//
// Path memory is written exactly once per Run regardless of retries, so
// retry policy stays idempotent with respect to recording.
func (r *Runner) Run(ctx context.Context, runID, stepID string, team types.Team, objective string, teamCtx map[string]string) *types.TeamOutput {
	teamID := team.ID()

	// Exhausted cost budget: skip without invoking.
	if r.ledger != nil && r.ledger.Exceeded() {
		r.publish(events.NewTeamEvent(runID, stepID, events.EventTypeTeamSkipped, teamID, string(types.StatusDeadEnd),
			fmt.Sprintf("team %s skipped: cost budget exhausted", teamID)))
		return &types.TeamOutput{TeamID: teamID, Status: types.StatusDeadEnd}
	}

	// Active prune suggestion: skip without invoking.
	if r.pruner.Active(teamID, objective, teamCtx) {
		r.publish(events.NewTeamEvent(runID, stepID, events.EventTypeTeamSkipped, teamID, string(types.StatusPruned),
			fmt.Sprintf("team %s skipped: active prune suggestion", teamID)))
		out := &types.TeamOutput{TeamID: teamID, Status: types.StatusPruned}
		r.record(ctx, teamID, objective, teamCtx, pathmemory.OutcomePruned)
		return out
	}

	// Known dead end: skip without invoking.
	sig := pathmemory.ComputeSignature(teamID, objective, teamCtx)
	if neg, err := r.store.NegativeLookup(ctx, sig); err == nil && neg {
		r.publish(events.NewTeamEvent(runID, stepID, events.EventTypeTeamSkipped, teamID, string(types.StatusDeadEnd),
			fmt.Sprintf("team %s skipped: path already recorded as dead end", teamID)))
		return &types.TeamOutput{TeamID: teamID, Status: types.StatusDeadEnd}
	}

	if err := r.acquire(ctx); err != nil {
		return &types.TeamOutput{TeamID: teamID, Status: types.StatusCancelled}
	}
	defer r.sem.Release(1)

	r.publish(events.NewTeamEvent(runID, stepID, events.EventTypeTeamInvoked, teamID, "", objective))

	out := r.invokeWithRetry(ctx, team, objective, teamCtx)

	if r.ledger != nil {
		r.ledger.Record(runID, teamID, out.Cost)
	}

	// Cancellation is not an outcome worth remembering; everything else
	// is recorded once.
	switch out.Status {
	case types.StatusOK:
		// Novelty is scored against what path memory held before this
		// invocation, so a first visit never reads as a re-exploration.
		if _, err := r.pruner.Evaluate(ctx, runID, teamID, objective, teamCtx, out); err != nil {
			r.publish(events.NewEvent(runID, stepID, events.EventTypeError, events.SeverityWarning,
				fmt.Sprintf("novelty evaluation failed for %s: %v", teamID, err)))
		}
		r.record(ctx, teamID, objective, teamCtx, pathmemory.OutcomeSuccess)
	case types.StatusDeadEnd, types.StatusTimeout:
		r.record(ctx, teamID, objective, teamCtx, pathmemory.OutcomeDeadEnd)
	}

	r.publish(events.NewTeamEvent(runID, stepID, events.EventTypeTeamCompleted, teamID, string(out.Status),
		fmt.Sprintf("team %s finished with status %s", teamID, out.Status)))
	return out
}

func (r *Runner) acquire(ctx context.Context) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.sem.Release(1)
			return err
		}
	}
	return nil
}

// invokeWithRetry calls the team under the configured deadline, retrying
// invocation errors with backoff. Timeouts and cancellation are not
// retried.
func (r *Runner) invokeWithRetry(ctx context.Context, team types.Team, objective string, teamCtx map[string]string) *types.TeamOutput {
	teamID := team.ID()
	backoff := r.cfg.InitialBackoff

	type invokeResult struct {
		result *types.TeamResult
		err    error
	}

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		resultCh := make(chan invokeResult, 1)
		go func() {
			result, err := team.Invoke(callCtx, objective, teamCtx)
			resultCh <- invokeResult{result: result, err: err}
		}()

		var result *types.TeamResult
		var err error
		select {
		case res := <-resultCh:
			result, err = res.result, res.err
		case <-callCtx.Done():
			// Synthesize the outcome even if the team ignores its context.
			err = callCtx.Err()
		}
		cancel()

		if err == nil {
			return normalize(teamID, result)
		}

		if ctx.Err() != nil {
			return &types.TeamOutput{TeamID: teamID, Status: types.StatusCancelled}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &types.TeamOutput{TeamID: teamID, Status: types.StatusTimeout}
		}
		if attempt >= r.cfg.MaxRetries {
			invErr := &types.TeamInvocationError{TeamID: teamID, Err: err}
			return &types.TeamOutput{TeamID: teamID, Text: invErr.Error(), Status: types.StatusDeadEnd}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &types.TeamOutput{TeamID: teamID, Status: types.StatusCancelled}
		}
		backoff = time.Duration(float64(backoff) * r.cfg.BackoffMultiplier)
	}
}

// normalize converts a raw team result into a validated TeamOutput. Out
// of range quality or cost marks the result unusable rather than letting
// bad numbers flow into aggregation.
func normalize(teamID string, result *types.TeamResult) *types.TeamOutput {
	if result == nil {
		return &types.TeamOutput{TeamID: teamID, Status: types.StatusDeadEnd}
	}
	out := &types.TeamOutput{
		TeamID:  teamID,
		Text:    result.Text,
		Quality: result.Quality,
		Cost:    result.Cost,
		Status:  types.StatusOK,
	}
	if result.Text == "" {
		out.Status = types.StatusDeadEnd
	}
	if err := out.Validate(); err != nil {
		return &types.TeamOutput{TeamID: teamID, Text: result.Text, Status: types.StatusDeadEnd}
	}
	return out
}

func (r *Runner) record(ctx context.Context, teamID, objective string, teamCtx map[string]string, outcome pathmemory.Outcome) {
	entry := pathmemory.Entry{
		Signature:  pathmemory.ComputeSignature(teamID, objective, teamCtx),
		TeamID:     teamID,
		Outcome:    outcome,
		RecordedAt: time.Now(),
	}
	if err := r.store.Record(ctx, entry); err != nil {
		r.publish(events.NewEvent("system", "", events.EventTypeError, events.SeverityWarning,
			fmt.Sprintf("failed to record path signature for %s: %v", teamID, err)))
	}
}

func (r *Runner) publish(evt events.Event) {
	_ = r.bus.Publish(evt)
}
