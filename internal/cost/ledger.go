// Package cost tracks cumulative team invocation spend against an
// optional budget. Teams report cost in opaque units; the ledger only
// sums and compares, it never interprets.
package cost

import (
	"fmt"
	"sync"

	"github.com/caucus-ai/caucus/internal/events"
)

// Status represents the current budget state
type Status int

const (
	// StatusHealthy indicates normal operation - under budget limits
	StatusHealthy Status = iota
	// StatusWarning indicates approaching the budget limit
	StatusWarning
	// StatusExceeded indicates the budget limit has been exceeded
	StatusExceeded
)

// String returns a human-readable string representation of the status
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusWarning:
		return "WARNING"
	case StatusExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// DefaultWarnFraction is the budget fraction at which the ledger starts
// warning.
const DefaultWarnFraction = 0.8

// Config holds ledger configuration.
type Config struct {
	// Limit is the total spend budget. Zero means unlimited.
	Limit float64

	// WarnFraction is the fraction of Limit at which status becomes
	// WARNING (default: 0.8)
	WarnFraction float64

	// Bus receives budget threshold events when set. Each threshold is
	// announced once per crossing, not per recording.
	Bus *events.Bus
}

// Ledger accumulates spend per run and per team. All methods are safe
// for concurrent use.
type Ledger struct {
	limit        float64
	warnFraction float64
	bus          *events.Bus

	mu     sync.Mutex
	total  float64
	byRun  map[string]float64
	byTeam map[string]float64
	stage  Status
}

// NewLedger creates a spend ledger.
func NewLedger(cfg *Config) *Ledger {
	var limit, warn float64
	var bus *events.Bus
	if cfg != nil {
		limit = cfg.Limit
		warn = cfg.WarnFraction
		bus = cfg.Bus
	}
	if warn <= 0 || warn >= 1 {
		warn = DefaultWarnFraction
	}
	return &Ledger{
		limit:        limit,
		warnFraction: warn,
		bus:          bus,
		byRun:        make(map[string]float64),
		byTeam:       make(map[string]float64),
	}
}

// Record adds one invocation's cost. Costs accrue to the mission root of
// runID, so sub-runs of the same mission share a bucket.
func (l *Ledger) Record(runID, teamID string, cost float64) {
	if cost <= 0 {
		return
	}
	root := missionRoot(runID)

	l.mu.Lock()
	l.total += cost
	l.byRun[root] += cost
	l.byTeam[teamID] += cost
	previous := l.stage
	l.stage = l.statusLocked()
	current := l.stage
	total := l.total
	l.mu.Unlock()

	if current != previous && l.bus != nil {
		l.announce(root, current, total)
	}
}

// Status reports where total spend sits relative to the budget.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked()
}

// Exceeded reports whether the budget is exhausted. Always false with
// no limit configured.
func (l *Ledger) Exceeded() bool {
	return l.Status() == StatusExceeded
}

// Total returns cumulative spend across all runs.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// RunTotal returns cumulative spend for one mission, including its
// sub-runs.
func (l *Ledger) RunTotal(runID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byRun[missionRoot(runID)]
}

// Summary returns spend per team, a copy safe to hold.
func (l *Ledger) Summary() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	summary := make(map[string]float64, len(l.byTeam))
	for team, spend := range l.byTeam {
		summary[team] = spend
	}
	return summary
}

func (l *Ledger) statusLocked() Status {
	if l.limit <= 0 {
		return StatusHealthy
	}
	switch {
	case l.total >= l.limit:
		return StatusExceeded
	case l.total >= l.limit*l.warnFraction:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func (l *Ledger) announce(runID string, status Status, total float64) {
	eventType := events.EventTypeBudgetWarning
	severity := events.SeverityWarning
	if status == StatusExceeded {
		eventType = events.EventTypeBudgetExceeded
		severity = events.SeverityError
	}
	evt := events.NewEvent(runID, "", eventType, severity,
		fmt.Sprintf("cost budget %s: %.2f of %.2f spent", status, total, l.limit))
	evt.Payload = map[string]interface{}{
		"total": total,
		"limit": l.limit,
	}
	_ = l.bus.Publish(evt)
}

// missionRoot strips the sub-run path from a run ID: "run-1/step-2/v3"
// accrues to "run-1".
func missionRoot(runID string) string {
	for i := 0; i < len(runID); i++ {
		if runID[i] == '/' {
			return runID[:i]
		}
	}
	return runID
}
