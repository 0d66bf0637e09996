package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caucus-ai/caucus/internal/pathmemory"
)

// PathStore is the durable path-memory backend. It shares the Storage
// handle and satisfies pathmemory.Store, so the engine can swap it for
// the in-memory store without touching callers.
type PathStore struct {
	storage *Storage
	ttl     time.Duration
}

// NewPathStore creates a durable path store. ttl <= 0 uses
// pathmemory.DefaultTTL.
func NewPathStore(storage *Storage, ttl time.Duration) *PathStore {
	if ttl <= 0 {
		ttl = pathmemory.DefaultTTL
	}
	return &PathStore{storage: storage, ttl: ttl}
}

// Record stores or replaces the entry for its signature.
func (p *PathStore) Record(ctx context.Context, entry pathmemory.Entry) error {
	query := `
		INSERT INTO paths (signature, team_id, outcome, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			team_id = excluded.team_id,
			outcome = excluded.outcome,
			recorded_at = excluded.recorded_at
	`
	_, err := p.storage.db.ExecContext(ctx, query,
		entry.Signature, entry.TeamID, string(entry.Outcome), entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record path (team=%s): %w", entry.TeamID, err)
	}
	return nil
}

// Lookup returns the entry for a signature, or nil if absent or expired.
// Expiry is checked lazily; expired rows are left for Sweep.
func (p *PathStore) Lookup(ctx context.Context, signature string) (*pathmemory.Entry, error) {
	query := `SELECT signature, team_id, outcome, recorded_at FROM paths WHERE signature = ?`
	var entry pathmemory.Entry
	var outcome string
	err := p.storage.db.QueryRowContext(ctx, query, signature).Scan(
		&entry.Signature, &entry.TeamID, &outcome, &entry.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up path: %w", err)
	}
	if time.Since(entry.RecordedAt) > p.ttl {
		return nil, nil
	}
	entry.Outcome = pathmemory.Outcome(outcome)
	return &entry, nil
}

// NegativeLookup reports whether the signature is recorded as an
// unexpired dead end. Pruned entries do not count: prune suggestions
// can be cleared or expire, and the path becomes explorable again.
func (p *PathStore) NegativeLookup(ctx context.Context, signature string) (bool, error) {
	entry, err := p.Lookup(ctx, signature)
	if err != nil || entry == nil {
		return false, err
	}
	return entry.Outcome == pathmemory.OutcomeDeadEnd, nil
}

// RecentByTeam returns up to limit unexpired entries for a team, most
// recent first.
func (p *PathStore) RecentByTeam(ctx context.Context, teamID string, limit int) ([]pathmemory.Entry, error) {
	query := `
		SELECT signature, team_id, outcome, recorded_at
		FROM paths
		WHERE team_id = ? AND recorded_at > ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	cutoff := time.Now().Add(-p.ttl)
	rows, err := p.storage.db.QueryContext(ctx, query, teamID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent paths: %w", err)
	}
	defer rows.Close()

	var result []pathmemory.Entry
	for rows.Next() {
		var entry pathmemory.Entry
		var outcome string
		if err := rows.Scan(&entry.Signature, &entry.TeamID, &outcome, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan path entry: %w", err)
		}
		entry.Outcome = pathmemory.Outcome(outcome)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating path rows: %w", err)
	}
	return result, nil
}

// Evict removes an entry before its TTL.
func (p *PathStore) Evict(ctx context.Context, signature string) error {
	if _, err := p.storage.db.ExecContext(ctx, `DELETE FROM paths WHERE signature = ?`, signature); err != nil {
		return fmt.Errorf("failed to evict path: %w", err)
	}
	return nil
}

// Sweep removes expired entries and reports how many were dropped.
func (p *PathStore) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-p.ttl)
	res, err := p.storage.db.ExecContext(ctx, `DELETE FROM paths WHERE recorded_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep paths: %w", err)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept paths: %w", err)
	}
	return int(dropped), nil
}

// Close is a no-op; the shared Storage handle owns the database.
func (p *PathStore) Close() error {
	return nil
}
