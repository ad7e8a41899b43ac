// Package pipeline orchestrates one monitoring invocation for one source:
// fetch, snapshot, diff against the prior snapshot, persist a qualifying
// change event, annotate, notify.
//
// Nothing in a Run may take the process down. Every failure is caught at
// the invocation boundary and logged; partial failures degrade to the
// strongest state that is still consistent (a snapshot without an event,
// an event without an insight, an event without deliveries).
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adversit/competitor-intel/idgen"
	"github.com/Adversit/competitor-intel/monitor/internal/diff"
	"github.com/Adversit/competitor-intel/monitor/internal/fetch"
	"github.com/Adversit/competitor-intel/monitor/internal/htmlstore"
	"github.com/Adversit/competitor-intel/monitor/internal/insight"
	"github.com/Adversit/competitor-intel/monitor/internal/store"
	"github.com/Adversit/competitor-intel/monitor/internal/structural"
)

// Notifier hands a persisted change event to the fanout.
type Notifier interface {
	Notify(ctx context.Context, src *store.Source, ev *store.ChangeEvent)
}

// Pipeline runs monitoring invocations. Safe for concurrent use across
// sources; per-source exclusion is the scheduler's job.
type Pipeline struct {
	store     *store.Store
	fetcher   fetch.Fetcher
	engine    *diff.Engine
	html      *htmlstore.Store // nil when raw HTML retention is off
	annotator insight.Annotator
	notifier  Notifier
	logger    *slog.Logger
}

// New assembles a Pipeline. html, annotator, and notifier may each be nil
// to disable that stage.
func New(st *store.Store, fetcher fetch.Fetcher, html *htmlstore.Store,
	annotator insight.Annotator, notifier Notifier, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		fetcher:   fetcher,
		engine:    diff.New(),
		html:      html,
		annotator: annotator,
		notifier:  notifier,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run executes one invocation for sourceID. It never returns an error;
// failures are logged and end the invocation at the stage they occur.
func (p *Pipeline) Run(ctx context.Context, sourceID string) {
	logger := p.logger.With("source_id", sourceID)

	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		logger.Error("source load failed", "error", err)
		return
	}
	if src == nil || !src.IsActive {
		logger.Debug("source missing or inactive, skipping")
		return
	}

	res, err := p.fetchLogged(ctx, src)
	if err != nil {
		logger.Warn("fetch failed", "url", src.URL, "error", err)
		return
	}

	ev, err := p.recordFetch(ctx, src, res)
	if err != nil {
		logger.Error("persist failed", "error", err)
		return
	}
	if ev == nil {
		logger.Debug("no qualifying change", "content_hash", res.Hash)
		return
	}
	logger.Info("change event recorded", "event_id", ev.ID, "summary", ev.DiffSummary)

	p.annotate(ctx, src, ev)
	if p.notifier != nil {
		p.notifier.Notify(ctx, src, ev)
	}
}

// fetchLogged fetches the source and records the attempt in the fetch log.
// The log write is best-effort; the fetch result is what matters.
func (p *Pipeline) fetchLogged(ctx context.Context, src *store.Source) (*fetch.Result, error) {
	start := time.Now()
	res, err := p.fetcher.Fetch(ctx, src.URL, src.FetchMode == "headless")

	entry := &store.FetchLogEntry{
		ID:         idgen.New(),
		SourceID:   src.ID,
		DurationMs: time.Since(start).Milliseconds(),
		FetchedAt:  start.UnixMilli(),
	}
	if err != nil {
		entry.Status = "error"
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = "success"
		entry.StatusCode = res.StatusCode
		entry.ContentHash = res.Hash
	}
	if logErr := p.store.InsertFetchLog(ctx, entry); logErr != nil {
		p.logger.Warn("fetch log write failed", "source_id", src.ID, "error", logErr)
	}
	return res, err
}

// recordFetch persists the fetch as a snapshot and, when the change
// qualifies, the change event — both in one committed unit. Returns the
// event, or nil when the fetch established a baseline or the change did
// not clear the gate.
func (p *Pipeline) recordFetch(ctx context.Context, src *store.Source, res *fetch.Result) (*store.ChangeEvent, error) {
	snap := &store.Snapshot{
		ID:            idgen.New(),
		SourceID:      src.ID,
		FetchedAt:     time.Now().UnixMilli(),
		ContentHash:   res.Hash,
		ExtractedText: res.Text,
	}
	if p.html != nil {
		path, err := p.html.Write(snap.ID, time.UnixMilli(snap.FetchedAt), res.HTML)
		if err != nil {
			p.logger.Warn("raw html write failed", "snapshot_id", snap.ID, "error", err)
		} else {
			snap.HTMLPath = path
		}
	}

	var ev *store.ChangeEvent
	err := p.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.InsertSnapshot(ctx, snap); err != nil {
			return err
		}
		prev, err := tx.PreviousSnapshot(ctx, src.ID, snap.ID)
		if err != nil {
			return err
		}
		if prev == nil {
			// First observation: baseline only.
			return nil
		}

		change := p.engine.Compute(prev.ExtractedText, snap.ExtractedText,
			diff.ParseSensitivity(src.Sensitivity))
		oldMarkup, newMarkup := p.markupPair(prev, res)
		fields := structural.Detect(oldMarkup, newMarkup)
		if change == nil && len(fields) == 0 {
			return nil
		}

		summary, chunksJSON, buildErr := buildEventPayload(change, fields)
		if buildErr != nil {
			return buildErr
		}
		candidate := &store.ChangeEvent{
			ID:             idgen.New(),
			SourceID:       src.ID,
			FromSnapshotID: prev.ID,
			ToSnapshotID:   snap.ID,
			DiffSummary:    summary,
			DiffChunksJSON: chunksJSON,
		}
		if err := tx.InsertChangeEvent(ctx, candidate); err != nil {
			if errors.Is(err, store.ErrEventExists) {
				// Replay against an already-recorded pair; keep the original.
				return nil
			}
			return err
		}
		ev = candidate
		return nil
	})
	if err != nil && snap.HTMLPath != "" {
		// The snapshot row was rolled back; nothing references the file.
		if rmErr := p.html.Remove(snap.HTMLPath); rmErr != nil {
			p.logger.Warn("orphaned raw html not removed",
				"snapshot_id", snap.ID, "error", rmErr)
		}
	}
	return ev, err
}

// markupPair returns matching old/new inputs for structural field
// extraction: raw HTML on both sides when the old page was retained,
// otherwise extracted text on both sides. Mixing the two representations
// would turn formatting differences into phantom field changes.
func (p *Pipeline) markupPair(prev *store.Snapshot, res *fetch.Result) (string, string) {
	if p.html != nil && prev.HTMLPath != "" {
		if html, err := p.html.Read(prev.HTMLPath); err == nil {
			return html, res.HTML
		}
	}
	return prev.ExtractedText, res.Text
}

// structuralChunk is the wire form of one structural field change, appended
// to the event's chunk list alongside the textual diff chunks.
type structuralChunk struct {
	Type     string   `json:"type"`
	Field    string   `json:"field"`
	Category string   `json:"category"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}

// buildEventPayload merges the textual change and the structural field
// changes into the event's summary and serialized chunk list. Structural
// detection alone is enough to carry an event: a price or version change can
// be textually tiny yet still matter.
func buildEventPayload(change *diff.Change, fields []structural.FieldChange) (string, string, error) {
	var chunks []any
	if change != nil {
		for _, wc := range change.WireChunks() {
			chunks = append(chunks, wc)
		}
	}
	for _, fc := range fields {
		chunks = append(chunks, structuralChunk{
			Type:     "structural",
			Field:    fc.Field,
			Category: fc.Category,
			Added:    fc.Added,
			Removed:  fc.Removed,
		})
	}
	raw, err := json.Marshal(chunks)
	if err != nil {
		return "", "", err
	}

	summary := structuralSummary(fields)
	if change != nil {
		summary = change.Summary
		if len(fields) > 0 {
			summary += "; " + structuralSummary(fields)
		}
	}
	return summary, string(raw), nil
}

func structuralSummary(fields []structural.FieldChange) string {
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("structural changes:")
	for _, fc := range fields {
		fmt.Fprintf(&b, " %s (+%d/-%d)", fc.Field, len(fc.Added), len(fc.Removed))
	}
	return b.String()
}

// annotate asks the collaborator for an insight and attaches it. Failure
// leaves the event unannotated; the event itself is never rolled back.
func (p *Pipeline) annotate(ctx context.Context, src *store.Source, ev *store.ChangeEvent) {
	if p.annotator == nil {
		return
	}
	in, err := p.annotator.Analyze(ctx, src, ev)
	if err != nil {
		p.logger.Warn("annotation failed, event stands unannotated",
			"event_id", ev.ID, "error", err)
		return
	}
	in.ID = idgen.New()
	if err := p.store.InsertInsight(ctx, in); err != nil {
		p.logger.Warn("insight write failed", "event_id", ev.ID, "error", err)
		return
	}
	if err := p.store.MarkEventProcessed(ctx, ev.ID); err != nil {
		p.logger.Warn("processed flag update failed", "event_id", ev.ID, "error", err)
		return
	}
	ev.IsProcessed = true
}
