// Package agent provides the team and critic implementations the engine
// invokes: scripted teams for tests and demos, AI-backed teams for real
// missions, and the constitutional critic.
package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/caucus-ai/caucus/internal/types"
)

// Registry holds teams and critics by name. All registration happens at
// wiring time; the engine never discovers implementations at runtime.
type Registry struct {
	mu      sync.RWMutex
	teams   map[string]types.Team
	critics map[string]types.Critic
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		teams:   make(map[string]types.Team),
		critics: make(map[string]types.Critic),
	}
}

// RegisterTeam adds a team. Re-registering an ID replaces the previous
// team.
func (r *Registry) RegisterTeam(team types.Team) error {
	if team == nil || team.ID() == "" {
		return fmt.Errorf("team with a non-empty ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[team.ID()] = team
	return nil
}

// RegisterCritic adds a critic.
func (r *Registry) RegisterCritic(critic types.Critic) error {
	if critic == nil || critic.ID() == "" {
		return fmt.Errorf("critic with a non-empty ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.critics[critic.ID()] = critic
	return nil
}

// Team returns a team by ID.
func (r *Registry) Team(id string) (types.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.teams[id]
	if !ok {
		return nil, fmt.Errorf("unknown team %q", id)
	}
	return team, nil
}

// Critic returns a critic by ID.
func (r *Registry) Critic(id string) (types.Critic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	critic, ok := r.critics[id]
	if !ok {
		return nil, fmt.Errorf("unknown critic %q", id)
	}
	return critic, nil
}

// Teams returns all registered teams keyed by ID.
func (r *Registry) Teams() map[string]types.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teams := make(map[string]types.Team, len(r.teams))
	for id, team := range r.teams {
		teams[id] = team
	}
	return teams
}

// Critics returns all registered critics, ordered by ID.
func (r *Registry) Critics() []types.Critic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.critics))
	for id := range r.critics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	critics := make([]types.Critic, 0, len(ids))
	for _, id := range ids {
		critics = append(critics, r.critics[id])
	}
	return critics
}
