package pruning

import (
	"fmt"
	"time"
)

// Config holds pruning evaluator configuration. The thresholds here vary
// across deployments; treat them as tuning knobs, not constants.
type Config struct {
	// Window is K: how many recent outcomes per team a new output is
	// compared against (default: 5)
	Window int

	// NoveltyThreshold is the score below which an output counts as
	// redundant exploration (default: 0.3)
	NoveltyThreshold float64

	// SimilarityThreshold is the token-overlap ratio at or above which two
	// output texts count as near-duplicates (default: 0.85)
	SimilarityThreshold float64

	// ConsecutiveLow is how many consecutive below-threshold novelty
	// scores for the same (team, objective) trigger a prune suggestion
	// (default: 2)
	ConsecutiveLow int

	// SuggestionTTL is how long a prune suggestion stays active before it
	// expires on its own (default: 30m)
	SuggestionTTL time.Duration
}

// DefaultConfig returns the default pruning configuration.
func DefaultConfig() *Config {
	return &Config{
		Window:              5,
		NoveltyThreshold:    0.3,
		SimilarityThreshold: 0.85,
		ConsecutiveLow:      2,
		SuggestionTTL:       30 * time.Minute,
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("window must be at least 1 (got %d)", c.Window)
	}
	if c.NoveltyThreshold < 0 || c.NoveltyThreshold > 1 {
		return fmt.Errorf("novelty threshold must be between 0.0 and 1.0 (got %.2f)", c.NoveltyThreshold)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0 (got %.2f)", c.SimilarityThreshold)
	}
	if c.ConsecutiveLow < 1 {
		return fmt.Errorf("consecutive_low must be at least 1 (got %d)", c.ConsecutiveLow)
	}
	if c.SuggestionTTL <= 0 {
		return fmt.Errorf("suggestion TTL must be positive (got %s)", c.SuggestionTTL)
	}
	return nil
}
