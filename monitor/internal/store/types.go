package store

// Competitor owns a set of monitored sources.
type Competitor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Website   string `json:"website"`
	Category  string `json:"category"`
	OwnerTeam string `json:"owner_team"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Source represents one monitored URL with its fetch/schedule/sensitivity
// configuration. The pipeline treats everything except IsActive as read-only.
type Source struct {
	ID           string `json:"id"`
	CompetitorID string `json:"competitor_id"`
	URL          string `json:"url"`
	SourceType   string `json:"source_type"` // homepage | pricing | changelog | docs
	FetchMode    string `json:"fetch_mode"`  // http | headless
	Schedule     string `json:"schedule"`    // 5-field cron expression
	Sensitivity  string `json:"sensitivity"` // low | medium | high
	IsActive     bool   `json:"is_active"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Snapshot is the immutable record of one fetch's extracted content.
type Snapshot struct {
	ID            string `json:"id"`
	SourceID      string `json:"source_id"`
	FetchedAt     int64  `json:"fetched_at"`
	ContentHash   string `json:"content_hash"`
	ExtractedText string `json:"extracted_text"`
	HTMLPath      string `json:"html_path"`
	CreatedAt     int64  `json:"created_at"`
}

// ChangeEvent is a persisted, qualifying difference between two consecutive
// snapshots of a source. Only IsProcessed is ever mutated after creation.
type ChangeEvent struct {
	ID             string `json:"id"`
	SourceID       string `json:"source_id"`
	FromSnapshotID string `json:"from_snapshot_id"`
	ToSnapshotID   string `json:"to_snapshot_id"`
	DiffSummary    string `json:"diff_summary"`
	DiffChunksJSON string `json:"diff_chunks"` // JSON array of chunk objects
	IsProcessed    bool   `json:"is_processed"`
	CreatedAt      int64  `json:"created_at"`
}

// Insight is the structured judgment an annotation attempt attached to a
// change event. Zero or more per event; absence is not an error.
type Insight struct {
	ID                   string `json:"id"`
	ChangeEventID        string `json:"change_event_id"`
	ChangeType           string `json:"change_type"` // feature | pricing | packaging | narrative | channel | compliance
	Impact               string `json:"impact"`      // high | medium | low
	Intent               string `json:"intent"`
	Rationale            string `json:"rationale"`
	SuggestedActionsJSON string `json:"suggested_actions"` // JSON array of strings
	EvidenceJSON         string `json:"evidence"`          // JSON array of {snippet,url,timestamp}
	CreatedAt            int64  `json:"created_at"`
}

// Subscription is an interest registration read by the notification fanout.
type Subscription struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TargetType string `json:"target_type"` // competitor | category
	TargetID   string `json:"target_id"`
	NotifyType string `json:"notify_type"` // realtime | weekly
	Channel    string `json:"channel"`     // webhook | email
	Endpoint   string `json:"endpoint"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  int64  `json:"created_at"`
}

// Battlecard is one version of a competitor's markdown brief. Versions are
// append-only; the highest version is the current card.
type Battlecard struct {
	ID           string `json:"id"`
	CompetitorID string `json:"competitor_id"`
	Version      int    `json:"version"`
	ContentMD    string `json:"content"`
	UpdatedAt    int64  `json:"updated_at"`
}

// Feedback is one usefulness vote on a change event.
type Feedback struct {
	ID            string `json:"id"`
	ChangeEventID string `json:"change_event_id"`
	UserID        string `json:"user_id"`
	IsUseful      bool   `json:"is_useful"`
	CreatedAt     int64  `json:"created_at"`
}

// FetchLogEntry is one fetch attempt record.
type FetchLogEntry struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	ContentHash  string `json:"content_hash"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}
