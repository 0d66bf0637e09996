package storage

const schema = `
-- Event transcript (append-only)
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    run_id TEXT NOT NULL,
    step_id TEXT NOT NULL DEFAULT '',
    parent_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '{}',
    timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

-- Path memory entries
CREATE TABLE IF NOT EXISTS paths (
    signature TEXT PRIMARY KEY,
    team_id TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('success', 'dead_end', 'pruned')),
    recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paths_team ON paths(team_id);
CREATE INDEX IF NOT EXISTS idx_paths_recorded_at ON paths(recorded_at);

-- Completed mission results
CREATE TABLE IF NOT EXISTS results (
    run_id TEXT PRIMARY KEY,
    success INTEGER NOT NULL,
    final_output TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    result TEXT NOT NULL,
    completed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_completed_at ON results(completed_at);
`
