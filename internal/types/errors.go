package types

import (
	"errors"
	"fmt"
)

// ErrNoBids is returned by the auction router when no specialist bids
// within the collection window and no default specialist is configured.
var ErrNoBids = errors.New("auction received no bids and no default specialist is configured")

// PlanningError is a structural problem with a mission plan: a malformed
// graph, a condition function returning a branch key with no edge, or a
// step exceeding its iteration cap. Planning errors are fatal and abort
// the mission.
type PlanningError struct {
	Step   string
	Reason string
}

func (e *PlanningError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("planning error: %s", e.Reason)
	}
	return fmt.Sprintf("planning error at step %q: %s", e.Step, e.Reason)
}

// VetoError carries a blocking gate decision. It is not a crash: callers
// surface it as a well-formed DirectiveResult with Success=false.
type VetoError struct {
	Decision GateDecision
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("vetoed by critic gate (weighted score %.2f, %d verdicts)",
		e.Decision.WeightedScore, len(e.Decision.Verdicts))
}

// TeamInvocationError wraps a failure of the external team call. The team
// runner converts it into a dead_end or timeout TeamOutput; it never
// propagates past the runner boundary.
type TeamInvocationError struct {
	TeamID string
	Err    error
}

func (e *TeamInvocationError) Error() string {
	return fmt.Sprintf("team %s invocation failed: %v", e.TeamID, e.Err)
}

func (e *TeamInvocationError) Unwrap() error { return e.Err }

// BackendUnavailableError indicates a durable backend (path memory store,
// directive queue) could not be reached. Components recover via in-memory
// fallback and publish a degraded-mode event; data is never dropped
// silently.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }
