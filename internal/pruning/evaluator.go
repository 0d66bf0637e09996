// Package pruning computes novelty scores for team outputs and suggests
// pruning teams whose exploration has gone redundant. It prevents the
// engine from re-exploring ground a team has already covered.
package pruning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/pathmemory"
	"github.com/caucus-ai/caucus/internal/types"
)

// sample is one remembered output: its path signature plus the text the
// similarity check runs against. Path memory keeps signatures durable;
// the text window lives here because only the evaluator needs it.
type sample struct {
	signature string
	text      string
}

type streakKey struct {
	teamID       string
	objectiveSig string
}

type suggestion struct {
	novelty   float64
	expiresAt time.Time
}

// Evaluator scores each new TeamOutput against the K most recent outputs
// of the same team and publishes prune_suggested events when novelty
// stays below threshold. The orchestrator must skip any team with an
// active suggestion until it is cleared or expires.
type Evaluator struct {
	cfg   *Config
	store pathmemory.Store
	bus   *events.Bus

	mu          sync.Mutex
	recent      map[string][]sample // team -> window, oldest first
	streaks     map[streakKey]int
	suggestions map[streakKey]suggestion
}

// EvaluatorConfig holds evaluator dependencies.
type EvaluatorConfig struct {
	Config *Config            // Thresholds (default: DefaultConfig())
	Store  pathmemory.Store   // Required: signature window source
	Bus    *events.Bus        // Required: prune event publication
}

// NewEvaluator creates a pruning evaluator.
func NewEvaluator(cfg *EvaluatorConfig) (*Evaluator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("path memory store is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	thresholds := cfg.Config
	if thresholds == nil {
		thresholds = DefaultConfig()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pruning config: %w", err)
	}
	return &Evaluator{
		cfg:         thresholds,
		store:       cfg.Store,
		bus:         cfg.Bus,
		recent:      make(map[string][]sample),
		streaks:     make(map[streakKey]int),
		suggestions: make(map[streakKey]suggestion),
	}, nil
}

// Evaluate scores one completed output and updates prune state. It
// returns the computed novelty in [0,1]: 1.0 means nothing similar was
// seen in the window, 0.0 means every recent outcome is a near-duplicate.
func (e *Evaluator) Evaluate(ctx context.Context, runID, teamID, objective string, teamCtx map[string]string, output *types.TeamOutput) (float64, error) {
	sig := pathmemory.ComputeSignature(teamID, objective, teamCtx)
	objSig := pathmemory.ObjectiveSignature(objective, teamCtx)

	// Durable signatures from path memory plus the in-process text window.
	durable, err := e.store.RecentByTeam(ctx, teamID, e.cfg.Window)
	if err != nil {
		return 0, fmt.Errorf("failed to read recent outcomes for %s: %w", teamID, err)
	}
	durableSigs := make(map[string]struct{}, len(durable))
	for _, entry := range durable {
		durableSigs[entry.Signature] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.recent[teamID]
	compared := len(window)
	if compared > e.cfg.Window {
		compared = e.cfg.Window
	}

	novelty := 1.0
	if compared > 0 {
		duplicates := 0
		for _, s := range window[len(window)-compared:] {
			if s.signature == sig || textSimilarity(s.text, output.Text) >= e.cfg.SimilarityThreshold {
				duplicates++
			}
		}
		novelty = 1.0 - float64(duplicates)/float64(compared)
	} else if _, ok := durableSigs[sig]; ok {
		// Fresh process with no text window yet: the durable signature
		// record alone marks this an exact re-exploration.
		novelty = 0.0
	}

	// Remember this output for future comparisons.
	window = append(window, sample{signature: sig, text: output.Text})
	if len(window) > e.cfg.Window {
		window = window[len(window)-e.cfg.Window:]
	}
	e.recent[teamID] = window

	key := streakKey{teamID: teamID, objectiveSig: objSig}
	if novelty < e.cfg.NoveltyThreshold {
		e.streaks[key]++
	} else {
		e.streaks[key] = 0
	}

	if e.streaks[key] >= e.cfg.ConsecutiveLow {
		if _, active := e.suggestions[key]; !active || e.suggestions[key].expiresAt.Before(time.Now()) {
			e.suggestions[key] = suggestion{novelty: novelty, expiresAt: time.Now().Add(e.cfg.SuggestionTTL)}
			evt := events.NewPruneEvent(runID, events.EventTypePruneSuggested, teamID, objSig, novelty,
				fmt.Sprintf("team %s produced %d consecutive low-novelty outputs, suggesting prune", teamID, e.streaks[key]))
			if err := e.bus.Publish(evt); err != nil {
				return novelty, fmt.Errorf("failed to publish prune suggestion: %w", err)
			}
		}
	}
	return novelty, nil
}

// Active reports whether an unexpired prune suggestion covers the
// (team, objective) pair. Expiry is checked lazily.
func (e *Evaluator) Active(teamID, objective string, teamCtx map[string]string) bool {
	key := streakKey{teamID: teamID, objectiveSig: pathmemory.ObjectiveSignature(objective, teamCtx)}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.suggestions[key]
	if !ok {
		return false
	}
	if time.Now().After(s.expiresAt) {
		delete(e.suggestions, key)
		delete(e.streaks, key)
		return false
	}
	return true
}

// Clear removes an active suggestion (explicit operator override) and
// resets the low-novelty streak. Publishes prune_cleared when a
// suggestion actually existed.
func (e *Evaluator) Clear(runID, teamID, objective string, teamCtx map[string]string) error {
	objSig := pathmemory.ObjectiveSignature(objective, teamCtx)
	key := streakKey{teamID: teamID, objectiveSig: objSig}

	e.mu.Lock()
	_, existed := e.suggestions[key]
	delete(e.suggestions, key)
	delete(e.streaks, key)
	e.mu.Unlock()

	if !existed {
		return nil
	}
	evt := events.NewPruneEvent(runID, events.EventTypePruneCleared, teamID, objSig, 0,
		fmt.Sprintf("prune suggestion for team %s cleared", teamID))
	if err := e.bus.Publish(evt); err != nil {
		return fmt.Errorf("failed to publish prune_cleared: %w", err)
	}
	return nil
}

// textSimilarity returns the Jaccard overlap of the two texts' token
// sets, in [0,1]. Empty texts compare as identical only to other empty
// texts.
func textSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[strings.Trim(tok, ".,;:!?()[]{}\"'")] = struct{}{}
	}
	delete(set, "")
	return set
}
