package notify

import (
	"encoding/json"
	"time"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// Payload is the flat JSON object posted to webhook subscribers.
type Payload struct {
	EventType   string           `json:"event_type"`
	EventID     string           `json:"event_id"`
	SourceID    string           `json:"source_id"`
	Timestamp   string           `json:"timestamp"`
	DiffSummary string           `json:"diff_summary"`
	DiffChunks  json.RawMessage  `json:"diff_chunks"`
	IsProcessed bool             `json:"is_processed"`
	Insights    []PayloadInsight `json:"insights"`
}

// PayloadInsight is the wire form of one attached insight.
type PayloadInsight struct {
	ChangeType       string          `json:"change_type"`
	Impact           string          `json:"impact"`
	Intent           string          `json:"intent"`
	Rationale        string          `json:"rationale"`
	SuggestedActions json.RawMessage `json:"suggested_actions"`
	Evidence         json.RawMessage `json:"evidence"`
}

// BuildPayload assembles the wire payload for one change event. Chunk and
// insight JSON columns are embedded as-is; empty columns become empty arrays
// so consumers always see a list.
func BuildPayload(ev *store.ChangeEvent, insights []*store.Insight) *Payload {
	p := &Payload{
		EventType:   "competitor_change",
		EventID:     ev.ID,
		SourceID:    ev.SourceID,
		Timestamp:   time.UnixMilli(ev.CreatedAt).UTC().Format(time.RFC3339),
		DiffSummary: ev.DiffSummary,
		DiffChunks:  rawArray(ev.DiffChunksJSON),
		IsProcessed: ev.IsProcessed,
		Insights:    make([]PayloadInsight, 0, len(insights)),
	}
	for _, in := range insights {
		p.Insights = append(p.Insights, PayloadInsight{
			ChangeType:       in.ChangeType,
			Impact:           in.Impact,
			Intent:           in.Intent,
			Rationale:        in.Rationale,
			SuggestedActions: rawArray(in.SuggestedActionsJSON),
			Evidence:         rawArray(in.EvidenceJSON),
		})
	}
	return p
}

func rawArray(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("[]")
	}
	return json.RawMessage(s)
}
