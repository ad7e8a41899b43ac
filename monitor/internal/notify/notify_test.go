package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adversit/competitor-intel/dbopen"
	"github.com/Adversit/competitor-intel/idgen"
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

func seedEvent(t *testing.T, st *store.Store) (*store.Source, *store.ChangeEvent) {
	t.Helper()
	ctx := context.Background()
	comp := &store.Competitor{ID: idgen.New(), Name: "Acme"}
	if err := st.InsertCompetitor(ctx, comp); err != nil {
		t.Fatalf("insert competitor: %v", err)
	}
	src := &store.Source{ID: idgen.New(), CompetitorID: comp.ID, URL: "https://acme.example/", IsActive: true}
	if err := st.InsertSource(ctx, src); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	from := &store.Snapshot{ID: idgen.New(), SourceID: src.ID, FetchedAt: 1000, ContentHash: "a", ExtractedText: "old"}
	to := &store.Snapshot{ID: idgen.New(), SourceID: src.ID, FetchedAt: 2000, ContentHash: "b", ExtractedText: "new"}
	for _, snap := range []*store.Snapshot{from, to} {
		if err := st.InsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert snapshot: %v", err)
		}
	}
	ev := &store.ChangeEvent{
		ID: idgen.New(), SourceID: src.ID,
		FromSnapshotID: from.ID, ToSnapshotID: to.ID,
		DiffSummary:    "Moderate update (change ratio 15.0%): +2 lines added, -1 lines removed",
		DiffChunksJSON: `[{"type":"replace","old_text":"old","new_text":"new","position":0}]`,
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
	if err := st.InsertChangeEvent(ctx, ev); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return src, ev
}

func subscribe(t *testing.T, st *store.Store, src *store.Source, endpoint string) *store.Subscription {
	t.Helper()
	sub := &store.Subscription{
		ID: idgen.New(), UserID: "u1",
		TargetType: "competitor", TargetID: src.CompetitorID,
		NotifyType: "realtime", Channel: "webhook",
		Endpoint: endpoint, IsActive: true,
	}
	if err := st.InsertSubscription(context.Background(), sub); err != nil {
		t.Fatalf("insert subscription: %v", err)
	}
	return sub
}

// WHAT: Notify posts the flat JSON payload from the external contract to a
// webhook subscriber: event_type "competitor_change", ISO-8601 timestamp,
// embedded chunk array, insights list.
func TestWebhookPayloadShape(t *testing.T) {
	st := openTestStore(t)
	src, ev := seedEvent(t, st)

	var mu sync.Mutex
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	subscribe(t, st, src, srv.URL)

	in := &store.Insight{
		ID: idgen.New(), ChangeEventID: ev.ID,
		ChangeType: "pricing", Impact: "high", Intent: "upmarket move",
		Rationale:            "price points raised across tiers",
		SuggestedActionsJSON: `["review pricing page"]`,
		EvidenceJSON:         `[{"snippet":"$15","url":"https://acme.example/","timestamp":"2026-08-01T12:00:00Z"}]`,
	}
	if err := st.InsertInsight(context.Background(), in); err != nil {
		t.Fatalf("insert insight: %v", err)
	}

	New(st, Config{}, nil).Notify(context.Background(), src, ev)

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("webhook endpoint never called")
	}
	if got["event_type"] != "competitor_change" {
		t.Fatalf("event_type = %v", got["event_type"])
	}
	if got["event_id"] != ev.ID || got["source_id"] != src.ID {
		t.Fatalf("ids: %v / %v", got["event_id"], got["source_id"])
	}
	if got["timestamp"] != "2026-08-01T12:00:00Z" {
		t.Fatalf("timestamp = %v", got["timestamp"])
	}
	chunks, ok := got["diff_chunks"].([]any)
	if !ok || len(chunks) != 1 {
		t.Fatalf("diff_chunks = %v", got["diff_chunks"])
	}
	insights, ok := got["insights"].([]any)
	if !ok || len(insights) != 1 {
		t.Fatalf("insights = %v", got["insights"])
	}
	first := insights[0].(map[string]any)
	if first["change_type"] != "pricing" || first["impact"] != "high" {
		t.Fatalf("insight fields: %v", first)
	}
}

// WHAT: one subscriber's delivery failure does not block delivery to the
// others, and a non-2xx response is not retried.
func TestPerSubscriptionIsolation(t *testing.T) {
	st := openTestStore(t)
	src, ev := seedEvent(t, st)

	var calls sync.Map
	var failCount int32
	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Store("fail", true)
		failCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fail.Close()
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Store("ok", true)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	subscribe(t, st, src, fail.URL)
	subscribe(t, st, src, ok.URL)

	New(st, Config{}, nil).Notify(context.Background(), src, ev)

	if _, hit := calls.Load("ok"); !hit {
		t.Fatal("healthy subscriber not notified after another failed")
	}
	if failCount != 1 {
		t.Fatalf("failing endpoint called %d times, want 1 (no retry)", failCount)
	}
}

// WHAT: category-targeted subscriptions are skipped and unknown channels are
// tolerated; neither reaches a dispatcher.
func TestSkipsCategoryAndUnknownChannel(t *testing.T) {
	st := openTestStore(t)
	src, ev := seedEvent(t, st)
	ctx := context.Background()

	for _, sub := range []*store.Subscription{
		{ID: idgen.New(), UserID: "u1", TargetType: "category", TargetID: "crm",
			NotifyType: "realtime", Channel: "webhook", Endpoint: "https://hook.example/cat", IsActive: true},
		{ID: idgen.New(), UserID: "u2", TargetType: "competitor", TargetID: src.CompetitorID,
			NotifyType: "realtime", Channel: "carrier-pigeon", Endpoint: "coop 7", IsActive: true},
	} {
		if err := st.InsertSubscription(ctx, sub); err != nil {
			t.Fatalf("insert subscription: %v", err)
		}
	}

	f := New(st, Config{}, nil)
	var dispatched int
	f.SetDispatcher(ChannelWebhook, dispatcherFunc(func(context.Context, *store.Subscription, *Payload) error {
		dispatched++
		return nil
	}))
	f.Notify(ctx, src, ev)

	if dispatched != 0 {
		t.Fatalf("dispatched %d payloads, want 0", dispatched)
	}
}

// WHAT: an event with empty chunk/insight columns still produces valid JSON
// arrays in the payload.
func TestPayloadEmptyColumns(t *testing.T) {
	ev := &store.ChangeEvent{ID: "e1", SourceID: "s1", CreatedAt: 0}
	p := BuildPayload(ev, nil)
	if string(p.DiffChunks) != "[]" {
		t.Fatalf("DiffChunks = %s", p.DiffChunks)
	}
	if p.Insights == nil || len(p.Insights) != 0 {
		t.Fatalf("Insights = %v", p.Insights)
	}
	if _, err := json.Marshal(p); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

type dispatcherFunc func(context.Context, *store.Subscription, *Payload) error

func (fn dispatcherFunc) Dispatch(ctx context.Context, sub *store.Subscription, p *Payload) error {
	return fn(ctx, sub, p)
}
