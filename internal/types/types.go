package types

import (
	"context"
	"fmt"
)

// OutputStatus describes how a team invocation ended.
type OutputStatus string

const (
	// StatusOK indicates the team produced a usable output
	StatusOK OutputStatus = "ok"
	// StatusDeadEnd indicates the invocation failed or produced unusable output
	StatusDeadEnd OutputStatus = "dead_end"
	// StatusPruned indicates the team was skipped due to an active prune suggestion
	StatusPruned OutputStatus = "pruned"
	// StatusTimeout indicates the invocation exceeded its deadline
	StatusTimeout OutputStatus = "timeout"
	// StatusCancelled indicates the surrounding mission was cancelled mid-flight
	StatusCancelled OutputStatus = "cancelled"
)

// TeamOutput is the normalized result of one team invocation.
// It is immutable after creation; the orchestrator and the pruning
// evaluator both consume it as a value.
type TeamOutput struct {
	TeamID  string       `json:"team_id"`
	Text    string       `json:"text"`
	Quality float64      `json:"quality"` // 0.0 to 1.0, opaque to the engine
	Cost    float64      `json:"cost"`    // >= 0, opaque units
	Status  OutputStatus `json:"status"`
}

// Validate checks that the output holds values the engine can act on.
func (o *TeamOutput) Validate() error {
	if o.TeamID == "" {
		return fmt.Errorf("team_id is required")
	}
	if o.Quality < 0.0 || o.Quality > 1.0 {
		return fmt.Errorf("quality must be between 0.0 and 1.0 (got %.2f)", o.Quality)
	}
	if o.Cost < 0 {
		return fmt.Errorf("cost cannot be negative (got %.2f)", o.Cost)
	}
	switch o.Status {
	case StatusOK, StatusDeadEnd, StatusPruned, StatusTimeout, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("unknown output status %q", o.Status)
	}
}

// Usable reports whether the output carries text worth aggregating.
func (o *TeamOutput) Usable() bool {
	return o.Status == StatusOK && o.Text != ""
}

// TeamResult is the raw payload returned by the external team invocation
// interface, before the runner normalizes it into a TeamOutput.
type TeamResult struct {
	Text    string  `json:"text"`
	Quality float64 `json:"quality"`
	Cost    float64 `json:"cost"`
}

// Team is one agent team the engine can invoke. Implementations wrap the
// external model call and must be idempotent with respect to side effects
// visible to the engine: calling Invoke twice with the same arguments is
// safe.
type Team interface {
	// ID returns the stable team identity used for path signatures
	ID() string
	// Invoke runs the team against an objective and returns its raw result
	Invoke(ctx context.Context, objective string, teamCtx map[string]string) (*TeamResult, error)
}

// Severity classifies how strongly a critic objects.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// CriticVerdict is one critic's judgment of a candidate plan or output.
type CriticVerdict struct {
	CriticID    string   `json:"critic_id"`
	Severity    Severity `json:"severity"`
	Credibility float64  `json:"credibility"` // 0.0 to 1.0; <0 means "not stated"
	Rationale   string   `json:"rationale,omitempty"`
}

// Validate checks verdict fields. A negative credibility is allowed and
// means the critic did not state one; the gate substitutes its default.
func (v *CriticVerdict) Validate() error {
	if v.CriticID == "" {
		return fmt.Errorf("critic_id is required")
	}
	if v.Credibility > 1.0 {
		return fmt.Errorf("credibility must not exceed 1.0 (got %.2f)", v.Credibility)
	}
	return nil
}

// GateDecision is the merged outcome of a set of critic verdicts.
// Rationales of all contributing verdicts are retained for audit.
type GateDecision struct {
	Accepted      bool            `json:"accepted"`
	Veto          bool            `json:"veto"`
	WeightedScore float64         `json:"weighted_score"`
	Verdicts      []CriticVerdict `json:"verdicts,omitempty"`
}

// CandidateKind distinguishes what a critic is being asked to judge.
type CandidateKind string

const (
	// CandidatePlan asks the critic to judge a mission plan before execution
	CandidatePlan CandidateKind = "plan"
	// CandidateOutput asks the critic to judge a team's produced output
	CandidateOutput CandidateKind = "output"
)

// Candidate is the unit of work a critic evaluates.
type Candidate struct {
	Kind      CandidateKind `json:"kind"`
	Objective string        `json:"objective"`
	Content   string        `json:"content"`
}

// Critic evaluates candidates and returns verdicts. Implementations are
// registered by name; the engine never discovers them at runtime.
type Critic interface {
	ID() string
	Evaluate(ctx context.Context, candidate Candidate) (*CriticVerdict, error)
}

// Bid is one specialist's sealed offer to take a task. Bids are consumed
// exactly once by the auction router and discarded after resolution.
type Bid struct {
	SpecialistID string  `json:"specialist_id"`
	Confidence   float64 `json:"confidence"` // 0.0 to 1.0
	DeclaredCost float64 `json:"declared_cost"`
}

// Validate checks bid fields.
func (b *Bid) Validate() error {
	if b.SpecialistID == "" {
		return fmt.Errorf("specialist_id is required")
	}
	if b.Confidence < 0.0 || b.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", b.Confidence)
	}
	if b.DeclaredCost < 0 {
		return fmt.Errorf("declared_cost cannot be negative (got %.2f)", b.DeclaredCost)
	}
	return nil
}

// Winner is the resolved outcome of one auction round.
type Winner struct {
	SpecialistID  string  `json:"specialist_id"`
	ClearingPrice float64 `json:"clearing_price"`
}

// Task describes work offered at auction.
type Task struct {
	Name      string `json:"name"`
	Objective string `json:"objective"`
}

// Specialist can bid on tasks. A specialist that declines to bid returns
// (nil, nil) from Bid.
type Specialist interface {
	ID() string
	Bid(ctx context.Context, task Task) (*Bid, error)
}
