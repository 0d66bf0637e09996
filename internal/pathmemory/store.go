package pathmemory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Outcome classifies how a recorded path ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDeadEnd Outcome = "dead_end"
	OutcomePruned  Outcome = "pruned"
)

// Entry is one recorded path: a signature, the team that walked it, and
// how it ended. Entries expire after the store's TTL or on explicit
// eviction.
type Entry struct {
	Signature  string    `json:"signature"`
	TeamID     string    `json:"team_id"`
	Outcome    Outcome   `json:"outcome"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store is the pluggable path-memory backend. Implementations must
// serialize writes per signature key; a global lock is not required.
type Store interface {
	// Record stores or replaces the entry for its signature
	Record(ctx context.Context, entry Entry) error
	// Lookup returns the entry for a signature, or nil if absent/expired
	Lookup(ctx context.Context, signature string) (*Entry, error)
	// NegativeLookup is the fast path for "this exact path already
	// failed, skip it": true iff the signature is recorded as a dead end
	// or pruned
	NegativeLookup(ctx context.Context, signature string) (bool, error)
	// RecentByTeam returns up to limit entries for a team, most recent first
	RecentByTeam(ctx context.Context, teamID string, limit int) ([]Entry, error)
	// Evict removes an entry before its TTL
	Evict(ctx context.Context, signature string) error
	// Sweep removes expired entries and reports how many were dropped
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// DefaultTTL is how long entries live unless configured otherwise.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often the in-memory store sweeps expired
// entries. Expiry is also checked lazily on every lookup.
const DefaultSweepInterval = 10 * time.Minute

// MemoryConfig holds in-memory store configuration.
type MemoryConfig struct {
	TTL           time.Duration // Entry lifetime (default: 24h)
	SweepInterval time.Duration // Periodic sweep cadence (default: 10m, <0 disables)
}

// MemoryStore is the in-memory Store backend with TTL expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	byTeam  map[string][]string // team -> signatures, oldest first
	ttl     time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryStore creates an in-memory path memory store and starts its
// sweep goroutine unless the sweep interval is negative.
func NewMemoryStore(cfg *MemoryConfig) *MemoryStore {
	ttl := DefaultTTL
	sweep := DefaultSweepInterval
	if cfg != nil {
		if cfg.TTL > 0 {
			ttl = cfg.TTL
		}
		if cfg.SweepInterval != 0 {
			sweep = cfg.SweepInterval
		}
	}
	s := &MemoryStore{
		entries: make(map[string]Entry),
		byTeam:  make(map[string][]string),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if sweep > 0 {
		go s.sweepLoop(sweep)
	} else {
		close(s.doneCh)
	}
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) expired(e Entry) bool {
	return time.Since(e.RecordedAt) > s.ttl
}

// Record stores or replaces the entry for its signature.
func (s *MemoryStore) Record(_ context.Context, entry Entry) error {
	if entry.Signature == "" {
		return fmt.Errorf("signature is required")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, exists := s.entries[entry.Signature]; exists {
		// Re-recording moves the signature to the recent end.
		s.removeTeamIndexLocked(old.TeamID, entry.Signature)
	}
	s.byTeam[entry.TeamID] = append(s.byTeam[entry.TeamID], entry.Signature)
	s.entries[entry.Signature] = entry
	return nil
}

// Lookup returns the entry for a signature. Expiry is checked lazily.
func (s *MemoryStore) Lookup(_ context.Context, signature string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[signature]
	s.mu.RUnlock()
	if !ok || s.expired(entry) {
		return nil, nil
	}
	return &entry, nil
}

// NegativeLookup reports whether the signature is a known dead end.
// Pruned entries do not count: a prune suggestion can be cleared or
// expire, and the path becomes explorable again.
func (s *MemoryStore) NegativeLookup(ctx context.Context, signature string) (bool, error) {
	entry, err := s.Lookup(ctx, signature)
	if err != nil || entry == nil {
		return false, err
	}
	return entry.Outcome == OutcomeDeadEnd, nil
}

// RecentByTeam returns up to limit unexpired entries for a team, most
// recent first.
func (s *MemoryStore) RecentByTeam(_ context.Context, teamID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sigs := s.byTeam[teamID]
	var out []Entry
	for i := len(sigs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		entry, ok := s.entries[sigs[i]]
		if ok && !s.expired(entry) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Evict removes an entry before its TTL.
func (s *MemoryStore) Evict(_ context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[signature]
	if !ok {
		return nil
	}
	delete(s.entries, signature)
	s.removeTeamIndexLocked(entry.TeamID, signature)
	return nil
}

// Sweep drops expired entries.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for sig, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, sig)
			s.removeTeamIndexLocked(entry.TeamID, sig)
			dropped++
		}
	}
	return dropped, nil
}

func (s *MemoryStore) removeTeamIndexLocked(teamID, signature string) {
	sigs := s.byTeam[teamID]
	for i, sig := range sigs {
		if sig == signature {
			s.byTeam[teamID] = append(sigs[:i], sigs[i+1:]...)
			return
		}
	}
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
	return nil
}
