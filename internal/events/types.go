package events

import (
	"fmt"
	"strings"
	"time"
)

// EventType represents the type of event that occurred during mission execution.
type EventType string

const (
	// Mission lifecycle events
	// EventTypeMissionSubmitted indicates a mission was accepted for execution
	EventTypeMissionSubmitted EventType = "mission_submitted"
	// EventTypeMissionPlanned indicates a mission plan was generated and validated
	EventTypeMissionPlanned EventType = "mission_planned"
	// EventTypePlanVetoed indicates the constitutional critic blocked a plan before execution
	EventTypePlanVetoed EventType = "plan_vetoed"
	// EventTypeMissionCompleted indicates the mission produced its DirectiveResult
	EventTypeMissionCompleted EventType = "mission_completed"
	// EventTypeMissionCancelled indicates the mission was cancelled mid-flight
	EventTypeMissionCancelled EventType = "mission_cancelled"

	// Step and stage events
	// EventTypeStepStarted indicates a mission step began executing
	EventTypeStepStarted EventType = "step_started"
	// EventTypeStepCompleted indicates a mission step finished
	EventTypeStepCompleted EventType = "step_completed"
	// EventTypeStageStarted indicates an orchestrator stage began
	EventTypeStageStarted EventType = "stage_started"
	// EventTypeStageCompleted indicates an orchestrator stage finished
	EventTypeStageCompleted EventType = "stage_completed"
	// EventTypeBroadcast indicates accumulated findings were broadcast to subscribers
	EventTypeBroadcast EventType = "broadcast_findings"

	// Team runner events
	// EventTypeTeamInvoked indicates a team invocation started
	EventTypeTeamInvoked EventType = "team_invoked"
	// EventTypeTeamCompleted indicates a team invocation returned
	EventTypeTeamCompleted EventType = "team_completed"
	// EventTypeTeamSkipped indicates a team was skipped without invocation
	EventTypeTeamSkipped EventType = "team_skipped"

	// Path memory and pruning events
	// EventTypePathRecorded indicates a path signature was recorded
	EventTypePathRecorded EventType = "path_recorded"
	// EventTypePruneSuggested indicates the pruning evaluator flagged a team for skipping
	EventTypePruneSuggested EventType = "prune_suggested"
	// EventTypePruneCleared indicates an active prune suggestion was cleared
	EventTypePruneCleared EventType = "prune_cleared"

	// Gate events
	// EventTypeGateEvaluated indicates critic verdicts were merged into a decision
	EventTypeGateEvaluated EventType = "gate_evaluated"
	// EventTypeGateVetoed indicates the merged decision was a veto
	EventTypeGateVetoed EventType = "gate_vetoed"

	// Auction events
	// EventTypeAuctionResolved indicates an auction round produced a winner
	EventTypeAuctionResolved EventType = "auction_resolved"
	// EventTypeAuctionNoBids indicates an auction round received no bids
	EventTypeAuctionNoBids EventType = "auction_no_bids"

	// Budget events
	// EventTypeBudgetWarning indicates spend is approaching the cost budget
	EventTypeBudgetWarning EventType = "budget_warning"
	// EventTypeBudgetExceeded indicates the cost budget is exhausted
	EventTypeBudgetExceeded EventType = "budget_exceeded"

	// Infrastructure events
	// EventTypeDegradedMode indicates a durable backend failed over to memory
	EventTypeDegradedMode EventType = "degraded_mode"
	// EventTypeHandlerError indicates a subscriber handler panicked during delivery
	EventTypeHandlerError EventType = "handler_error"
	// EventTypeHandlerDetached indicates a subscriber exceeded the delivery budget and was removed
	EventTypeHandlerDetached EventType = "handler_detached"
	// EventTypeError indicates a general error occurred
	EventTypeError EventType = "error"
)

// EventSeverity indicates the importance of an event.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// Event is one immutable entry in the hierarchical event log. RunID is a
// slash-separated topic path (a sub-orchestrator's run ID nests under its
// parent's, e.g. "run-42/audit"), which is what prefix subscriptions match
// against.
type Event struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	StepID    string                 `json:"step_id,omitempty"`
	ParentID  string                 `json:"parent_id,omitempty"`
	Type      EventType              `json:"type"`
	Severity  EventSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Validate checks that the event has the minimum required fields.
func (e *Event) Validate() error {
	if e.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	return nil
}

// RunRoot returns the top-level run the event belongs to: the first
// segment of the RunID path.
func (e *Event) RunRoot() string {
	if i := strings.IndexByte(e.RunID, '/'); i >= 0 {
		return e.RunID[:i]
	}
	return e.RunID
}

// MatchesPrefix reports whether the event's topic falls under prefix.
// A subscriber on "run-42" receives events for "run-42" and every nested
// run ID beneath it ("run-42/audit", "run-42/audit/pair"), but not for
// "run-421".
func (e *Event) MatchesPrefix(prefix string) bool {
	if prefix == "" {
		return true
	}
	if e.RunID == prefix {
		return true
	}
	return strings.HasPrefix(e.RunID, prefix+"/")
}

// EventFilter selects events from the log or transcript.
type EventFilter struct {
	RunPrefix string        // Prefix topic match; empty matches everything
	Types     []EventType   // Filter by type; empty matches all types
	Severity  EventSeverity // Minimum severity; empty matches all
	Since     time.Time     // Only events at or after this time
	Limit     int           // Maximum number of events (0 = no limit)
}

// Matches reports whether an event passes the filter (ignoring Limit,
// which the caller applies).
func (f *EventFilter) Matches(e *Event) bool {
	if !e.MatchesPrefix(f.RunPrefix) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Severity != "" && severityRank(e.Severity) < severityRank(f.Severity) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func severityRank(s EventSeverity) int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}
