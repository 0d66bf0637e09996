package events

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent creates a new event with a fresh ID and timestamp. Callers set
// ParentID and Payload on the returned value before publishing.
func NewEvent(runID, stepID string, eventType EventType, severity EventSeverity, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		StepID:    stepID,
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewChildEvent creates an event causally ordered after parent. The bus
// will refuse to deliver it unless the parent was already published.
func NewChildEvent(parent Event, eventType EventType, severity EventSeverity, message string) Event {
	e := NewEvent(parent.RunID, parent.StepID, eventType, severity, message)
	e.ParentID = parent.ID
	return e
}

// NewTeamEvent creates a team runner event carrying the team identity and
// outcome in its payload.
func NewTeamEvent(runID, stepID string, eventType EventType, teamID, status, message string) Event {
	e := NewEvent(runID, stepID, eventType, SeverityInfo, message)
	e.Payload = map[string]interface{}{
		"team_id": teamID,
		"status":  status,
	}
	return e
}

// NewPruneEvent creates a prune lifecycle event for a (team, objective)
// pair.
func NewPruneEvent(runID string, eventType EventType, teamID, objectiveSig string, novelty float64, message string) Event {
	e := NewEvent(runID, "", eventType, SeverityWarning, message)
	e.Payload = map[string]interface{}{
		"team_id":       teamID,
		"objective_sig": objectiveSig,
		"novelty":       novelty,
	}
	return e
}

// NewGateEvent creates a gate decision event.
func NewGateEvent(runID, stepID string, accepted, veto bool, weightedScore float64, message string) Event {
	typ := EventTypeGateEvaluated
	sev := SeverityInfo
	if veto {
		typ = EventTypeGateVetoed
		sev = SeverityWarning
	}
	e := NewEvent(runID, stepID, typ, sev, message)
	e.Payload = map[string]interface{}{
		"accepted":       accepted,
		"veto":           veto,
		"weighted_score": weightedScore,
	}
	return e
}

// NewDegradedModeEvent signals that a durable backend failed over to its
// in-memory fallback. Published so degradation is never silent.
func NewDegradedModeEvent(runID, backend, reason string) Event {
	e := NewEvent(runID, "", EventTypeDegradedMode, SeverityWarning,
		"backend "+backend+" degraded to in-memory fallback")
	e.Payload = map[string]interface{}{
		"backend": backend,
		"reason":  reason,
	}
	return e
}
