package store

import "database/sql"

// Schema is the complete monitoring schema.
const Schema = `
-- Competitors: owners of monitored sources
CREATE TABLE IF NOT EXISTS competitors (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    website     TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    owner_team  TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Sources to monitor
CREATE TABLE IF NOT EXISTS sources (
    id            TEXT PRIMARY KEY,
    competitor_id TEXT NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    url           TEXT NOT NULL,
    source_type   TEXT NOT NULL DEFAULT 'homepage',
    fetch_mode    TEXT NOT NULL DEFAULT 'http',
    schedule      TEXT NOT NULL DEFAULT '0 8 * * *',
    sensitivity   TEXT NOT NULL DEFAULT 'medium',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_competitor ON sources(competitor_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_url_unique ON sources(url);

-- Snapshots: one fetch result per row, immutable once created
CREATE TABLE IF NOT EXISTS snapshots (
    id             TEXT PRIMARY KEY,
    source_id      TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    fetched_at     INTEGER NOT NULL,
    content_hash   TEXT NOT NULL,
    extracted_text TEXT NOT NULL,
    html_path      TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_source_time ON snapshots(source_id, fetched_at DESC);

-- Change events: a qualifying difference between two consecutive snapshots
CREATE TABLE IF NOT EXISTS change_events (
    id               TEXT PRIMARY KEY,
    source_id        TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    from_snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
    to_snapshot_id   TEXT NOT NULL REFERENCES snapshots(id),
    diff_summary     TEXT NOT NULL,
    diff_chunks      TEXT NOT NULL DEFAULT '[]',
    is_processed     INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_source_time ON change_events(source_id, created_at DESC);
-- At most one event per snapshot pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_pair_unique ON change_events(from_snapshot_id, to_snapshot_id);

-- Insights: best-effort AI annotation, at most a handful per event
CREATE TABLE IF NOT EXISTS insights (
    id                TEXT PRIMARY KEY,
    change_event_id   TEXT NOT NULL REFERENCES change_events(id) ON DELETE CASCADE,
    change_type       TEXT NOT NULL DEFAULT '',
    impact            TEXT NOT NULL DEFAULT '',
    intent            TEXT NOT NULL DEFAULT '',
    rationale         TEXT NOT NULL DEFAULT '',
    suggested_actions TEXT NOT NULL DEFAULT '[]',
    evidence          TEXT NOT NULL DEFAULT '[]',
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_event ON insights(change_event_id);

-- Subscriptions: interest registrations for notification fanout
CREATE TABLE IF NOT EXISTS subscriptions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    target_type TEXT NOT NULL DEFAULT 'competitor',
    target_id   TEXT NOT NULL,
    notify_type TEXT NOT NULL DEFAULT 'realtime',
    channel     TEXT NOT NULL DEFAULT 'webhook',
    endpoint    TEXT NOT NULL DEFAULT '',
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_target ON subscriptions(target_type, target_id);

-- Battlecards: versioned per-competitor markdown briefs. Rows are never
-- updated; each regeneration or manual edit appends the next version.
CREATE TABLE IF NOT EXISTS battlecards (
    id            TEXT PRIMARY KEY,
    competitor_id TEXT NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    version       INTEGER NOT NULL,
    content_md    TEXT NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_battlecards_version ON battlecards(competitor_id, version);

-- Feedback: usefulness votes on change events, kept for noise tuning
CREATE TABLE IF NOT EXISTS feedback (
    id              TEXT PRIMARY KEY,
    change_event_id TEXT NOT NULL REFERENCES change_events(id) ON DELETE CASCADE,
    user_id         TEXT NOT NULL DEFAULT '',
    is_useful       INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_event ON feedback(change_event_id);

-- Fetch log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    status        TEXT NOT NULL,
    status_code   INTEGER,
    content_hash  TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source_id, fetched_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
