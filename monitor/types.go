package monitor

import "github.com/Adversit/competitor-intel/monitor/internal/store"

// Domain records, owned by the store layer and re-exported as the public
// surface of the package.
type (
	Competitor    = store.Competitor
	Source        = store.Source
	Snapshot      = store.Snapshot
	ChangeEvent   = store.ChangeEvent
	Insight       = store.Insight
	Subscription  = store.Subscription
	FetchLogEntry = store.FetchLogEntry
	Battlecard    = store.Battlecard
	Feedback      = store.Feedback
)

// TestFetchResult is the synchronous outcome of a test fetch: what the
// fetcher saw and what the diff gate would have done, with nothing persisted.
type TestFetchResult struct {
	Title       string `json:"title"`
	StatusCode  int    `json:"status_code"`
	ContentHash string `json:"content_hash"`
	TextLength  int    `json:"text_length"`
	// WouldEmit reports whether a change event would have been recorded
	// against the current baseline. False when no baseline exists yet.
	WouldEmit   bool   `json:"would_emit"`
	DiffSummary string `json:"diff_summary,omitempty"`
}
