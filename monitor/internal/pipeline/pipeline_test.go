package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adversit/competitor-intel/dbopen"
	"github.com/Adversit/competitor-intel/idgen"
	"github.com/Adversit/competitor-intel/monitor/internal/fetch"
	"github.com/Adversit/competitor-intel/monitor/internal/htmlstore"
	"github.com/Adversit/competitor-intel/monitor/internal/store"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return store.NewStore(db)
}

func seedSource(t *testing.T, st *store.Store, sensitivity string) *store.Source {
	t.Helper()
	ctx := context.Background()
	comp := &store.Competitor{ID: idgen.New(), Name: "Acme"}
	if err := st.InsertCompetitor(ctx, comp); err != nil {
		t.Fatalf("insert competitor: %v", err)
	}
	src := &store.Source{
		ID: idgen.New(), CompetitorID: comp.ID,
		URL: "https://acme.example/", Sensitivity: sensitivity, IsActive: true,
	}
	if err := st.InsertSource(ctx, src); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	return src
}

// fetcherFunc serves canned pages, one per call.
type fetcherFunc func(ctx context.Context, url string, renderJS bool) (*fetch.Result, error)

func (fn fetcherFunc) Fetch(ctx context.Context, url string, renderJS bool) (*fetch.Result, error) {
	return fn(ctx, url, renderJS)
}

func servePages(pages ...string) fetch.Fetcher {
	i := 0
	return fetcherFunc(func(context.Context, string, bool) (*fetch.Result, error) {
		page := pages[i]
		if i < len(pages)-1 {
			i++
		}
		return &fetch.Result{HTML: "<html><body>" + page + "</body></html>", Text: page,
			Hash: "h-" + page[:min(8, len(page))], StatusCode: 200}, nil
	})
}

type recordingNotifier struct {
	events []*store.ChangeEvent
}

func (n *recordingNotifier) Notify(_ context.Context, _ *store.Source, ev *store.ChangeEvent) {
	n.events = append(n.events, ev)
}

// WHAT: the first fetch of a source persists exactly one snapshot and zero
// change events.
// WHY: there is nothing to compare against; the snapshot is the baseline.
func TestFirstObservationBaseline(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "medium")
	ctx := context.Background()

	n := &recordingNotifier{}
	p := New(st, servePages("Hello world"), nil, nil, n, nil)
	p.Run(ctx, src.ID)

	count, err := st.CountSnapshots(ctx, src.ID)
	if err != nil {
		t.Fatalf("CountSnapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("snapshots = %d, want 1", count)
	}
	events, err := st.ListChangeEvents(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("ListChangeEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0 on first observation", len(events))
	}
	if len(n.events) != 0 {
		t.Fatalf("notifier called %d times on first observation", len(n.events))
	}
}

// WHAT: a qualifying change on the second fetch produces one event
// referencing the baseline/new snapshot pair, and the notifier receives it.
func TestChangeProducesEvent(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "medium")
	ctx := context.Background()

	n := &recordingNotifier{}
	p := New(st, servePages(
		"This is a short text.",
		"This is a much longer text with many more words and details.",
	), nil, nil, n, nil)
	p.Run(ctx, src.ID)
	p.Run(ctx, src.ID)

	events, err := st.ListChangeEvents(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("ListChangeEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if !strings.Contains(ev.DiffSummary, "Major") {
		t.Fatalf("summary = %q, want major classification", ev.DiffSummary)
	}

	snaps, err := st.ListSnapshots(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	// Newest first: the event must span exactly the two snapshots.
	if ev.ToSnapshotID != snaps[0].ID || ev.FromSnapshotID != snaps[1].ID {
		t.Fatalf("event pair %s->%s does not match snapshots", ev.FromSnapshotID, ev.ToSnapshotID)
	}

	if len(n.events) != 1 || n.events[0].ID != ev.ID {
		t.Fatalf("notifier events = %+v", n.events)
	}
}

// WHAT: an unchanged page still persists a snapshot (the new baseline) but
// emits no event and triggers no notification.
func TestUnchangedPageNoEvent(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "high")
	ctx := context.Background()

	n := &recordingNotifier{}
	p := New(st, servePages("Hello world"), nil, nil, n, nil)
	p.Run(ctx, src.ID)
	p.Run(ctx, src.ID)

	count, _ := st.CountSnapshots(ctx, src.ID)
	if count != 2 {
		t.Fatalf("snapshots = %d, want 2", count)
	}
	events, _ := st.ListChangeEvents(ctx, src.ID, 10)
	if len(events) != 0 {
		t.Fatalf("events = %d, want 0", len(events))
	}
	if len(n.events) != 0 {
		t.Fatal("notifier called for unchanged page")
	}
}

// WHAT: a fetch failure ends the invocation with no snapshot written and an
// error entry in the fetch log.
// WHY: a failed fetch must not become a baseline, or the next success would
// diff against garbage.
func TestFetchFailureNoSnapshot(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "medium")
	ctx := context.Background()

	p := New(st, fetcherFunc(func(context.Context, string, bool) (*fetch.Result, error) {
		return nil, errors.New("connect timeout")
	}), nil, nil, nil, nil)
	p.Run(ctx, src.ID)

	count, _ := st.CountSnapshots(ctx, src.ID)
	if count != 0 {
		t.Fatalf("snapshots = %d, want 0 after failed fetch", count)
	}
	hist, err := st.FetchHistory(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].Status != "error" {
		t.Fatalf("fetch log = %+v, want one error entry", hist)
	}
}

// WHAT: an inactive source is a no-op end to end.
func TestInactiveSourceSkipped(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "medium")
	ctx := context.Background()
	if err := st.SetSourceActive(ctx, src.ID, false); err != nil {
		t.Fatalf("SetSourceActive: %v", err)
	}

	called := false
	p := New(st, fetcherFunc(func(context.Context, string, bool) (*fetch.Result, error) {
		called = true
		return &fetch.Result{Text: "x", Hash: "x"}, nil
	}), nil, nil, nil, nil)
	p.Run(ctx, src.ID)

	if called {
		t.Fatal("inactive source was fetched")
	}
}

// WHAT: a price change too small for the low-sensitivity text gate still
// produces an event carrying a structural chunk.
// WHY: the field extractor is complementary to the diff gate; a $10→$15 move
// matters even when almost nothing else on the page changed.
func TestStructuralChangeForcesEvent(t *testing.T) {
	st := openTestStore(t)
	src := seedSource(t, st, "low")
	ctx := context.Background()

	filler := strings.Repeat("The same marketing copy on every line.\n", 40)
	p := New(st, servePages(
		filler+"Price: $10",
		filler+"Price: $15",
	), nil, nil, nil, nil)
	p.Run(ctx, src.ID)
	p.Run(ctx, src.ID)

	events, err := st.ListChangeEvents(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("ListChangeEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (structural detection must fire below the text gate)", len(events))
	}
	ev := events[0]
	if !strings.Contains(ev.DiffSummary, "price") {
		t.Fatalf("summary = %q, want price field mention", ev.DiffSummary)
	}
	if !strings.Contains(ev.DiffChunksJSON, `"type":"structural"`) ||
		!strings.Contains(ev.DiffChunksJSON, "15") {
		t.Fatalf("chunks = %s, want structural chunk with new price", ev.DiffChunksJSON)
	}
}

// WHAT: when the snapshot transaction rolls back, the raw HTML file written
// for it is removed; nothing on disk may outlive its database row.
func TestPersistFailureRemovesRawHTML(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	st := store.NewStore(db)
	src := seedSource(t, st, "medium")
	ctx := context.Background()

	dir := t.TempDir()
	p := New(st, servePages("Hello world", "Changed world"), htmlstore.New(dir), nil, nil, nil)
	p.Run(ctx, src.ID)

	// Force the second snapshot insert to fail mid-transaction.
	if _, err := db.Exec(`CREATE UNIQUE INDEX one_snap_per_source ON snapshots(source_id)`); err != nil {
		t.Fatalf("create index: %v", err)
	}
	p.Run(ctx, src.ID)

	count, _ := st.CountSnapshots(ctx, src.ID)
	if count != 1 {
		t.Fatalf("snapshots = %d, want 1", count)
	}
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return err
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if files != 1 {
		t.Fatalf("html files = %d, want 1 (rolled-back snapshot left a file)", files)
	}
}

// annotatorFunc adapts a function to the annotation collaborator contract.
type annotatorFunc func(ctx context.Context, src *store.Source, ev *store.ChangeEvent) (*store.Insight, error)

func (fn annotatorFunc) Analyze(ctx context.Context, src *store.Source, ev *store.ChangeEvent) (*store.Insight, error) {
	return fn(ctx, src, ev)
}

// WHAT: annotation failure leaves the event in place, unprocessed, and the
// notifier still runs; annotation success attaches the insight and marks
// the event processed.
func TestAnnotationBestEffort(t *testing.T) {
	for _, tc := range []struct {
		name          string
		fail          bool
		wantProcessed bool
		wantInsights  int
	}{
		{"failure tolerated", true, false, 0},
		{"success attaches insight", false, true, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := openTestStore(t)
			src := seedSource(t, st, "medium")
			ctx := context.Background()

			ann := annotatorFunc(func(_ context.Context, _ *store.Source, ev *store.ChangeEvent) (*store.Insight, error) {
				if tc.fail {
					return nil, errors.New("model unavailable")
				}
				return &store.Insight{
					ChangeEventID: ev.ID, ChangeType: "pricing", Impact: "high",
					SuggestedActionsJSON: "[]", EvidenceJSON: "[]",
				}, nil
			})
			n := &recordingNotifier{}
			p := New(st, servePages(
				"This is a short text.",
				"This is a much longer text with many more words and details.",
			), nil, ann, n, nil)
			p.Run(ctx, src.ID)
			p.Run(ctx, src.ID)

			events, _ := st.ListChangeEvents(ctx, src.ID, 10)
			if len(events) != 1 {
				t.Fatalf("events = %d, want 1", len(events))
			}
			if events[0].IsProcessed != tc.wantProcessed {
				t.Fatalf("is_processed = %v, want %v", events[0].IsProcessed, tc.wantProcessed)
			}
			insights, _ := st.ListInsights(ctx, events[0].ID)
			if len(insights) != tc.wantInsights {
				t.Fatalf("insights = %d, want %d", len(insights), tc.wantInsights)
			}
			if len(n.events) != 1 {
				t.Fatalf("notifier events = %d, want 1 regardless of annotation", len(n.events))
			}
		})
	}
}
