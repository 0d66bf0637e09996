package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/caucus-ai/caucus/internal/types"
)

// ConstitutionalCritic vetoes plans that touch forbidden territory. It
// matches rules against the plan text; an AI-backed critic can replace
// it through the same interface.
type ConstitutionalCritic struct {
	id          string
	forbidden   []string
	credibility float64
}

// DefaultForbidden is the baseline rule set: plans proposing destructive
// or exfiltrating work are vetoed.
var DefaultForbidden = []string{
	"delete all",
	"drop database",
	"exfiltrate",
	"disable safety",
	"wipe",
}

// NewConstitutionalCritic creates a rule-based critic. Empty rules use
// DefaultForbidden; credibility outside (0, 1] falls back to 0.9.
func NewConstitutionalCritic(id string, forbidden []string, credibility float64) *ConstitutionalCritic {
	if id == "" {
		id = "constitution"
	}
	if len(forbidden) == 0 {
		forbidden = DefaultForbidden
	}
	if credibility <= 0 || credibility > 1 {
		credibility = 0.9
	}
	return &ConstitutionalCritic{id: id, forbidden: forbidden, credibility: credibility}
}

// ID returns the critic identity.
func (c *ConstitutionalCritic) ID() string { return c.id }

// Evaluate returns a critical verdict when the candidate matches a
// forbidden rule, and an informational pass otherwise.
func (c *ConstitutionalCritic) Evaluate(_ context.Context, candidate types.Candidate) (*types.CriticVerdict, error) {
	text := strings.ToLower(candidate.Objective + "\n" + candidate.Content)
	for _, rule := range c.forbidden {
		if strings.Contains(text, rule) {
			return &types.CriticVerdict{
				CriticID:    c.id,
				Severity:    types.SeverityCritical,
				Credibility: c.credibility,
				Rationale:   fmt.Sprintf("matches forbidden rule %q", rule),
			}, nil
		}
	}
	return &types.CriticVerdict{
		CriticID:    c.id,
		Severity:    types.SeverityInfo,
		Credibility: c.credibility,
		Rationale:   "no constitutional concerns",
	}, nil
}
