package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adversit/competitor-intel/idgen"
	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// composerFunc adapts a function to the drafting collaborator contract.
type composerFunc func(ctx context.Context, prompt string) (string, error)

func (fn composerFunc) Compose(ctx context.Context, prompt string) (string, error) {
	return fn(ctx, prompt)
}

func seedEvent(t *testing.T, svc *Service, sourceID, summary string) *ChangeEvent {
	t.Helper()
	ctx := context.Background()
	from := &store.Snapshot{ID: idgen.New(), SourceID: sourceID,
		FetchedAt: time.Now().Add(-time.Hour).UnixMilli(), ContentHash: "a", ExtractedText: "old"}
	to := &store.Snapshot{ID: idgen.New(), SourceID: sourceID,
		FetchedAt: time.Now().UnixMilli(), ContentHash: "b", ExtractedText: "new"}
	for _, snap := range []*store.Snapshot{from, to} {
		if err := svc.store.InsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert snapshot: %v", err)
		}
	}
	ev := &store.ChangeEvent{
		ID: idgen.New(), SourceID: sourceID,
		FromSnapshotID: from.ID, ToSnapshotID: to.ID,
		DiffSummary: summary,
	}
	if err := svc.store.InsertChangeEvent(ctx, ev); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return ev
}

// WHAT: without a composer, generation fills the template with the
// competitor's name and recent event summaries; each generation appends the
// next version and the latest/history accessors agree.
func TestGenerateBattlecardTemplate(t *testing.T) {
	svc := newTestService(t)
	comp := addCompetitor(t, svc)
	ctx := context.Background()

	src := &Source{CompetitorID: comp.ID, URL: "https://acme.example/pricing"}
	if err := svc.AddSource(ctx, src); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	seedEvent(t, svc, src.ID, "Pro tier raised from $10 to $15")

	bc, err := svc.GenerateBattlecard(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GenerateBattlecard: %v", err)
	}
	if bc.Version != 1 {
		t.Fatalf("version = %d, want 1", bc.Version)
	}
	if !strings.Contains(bc.ContentMD, "# Acme") {
		t.Fatalf("content missing competitor heading:\n%s", bc.ContentMD)
	}
	if !strings.Contains(bc.ContentMD, "Pro tier raised from $10 to $15") {
		t.Fatalf("content missing recent activity:\n%s", bc.ContentMD)
	}

	again, err := svc.GenerateBattlecard(ctx, comp.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if again.Version != 2 {
		t.Fatalf("version after regenerate = %d, want 2", again.Version)
	}

	latest, err := svc.Battlecard(ctx, comp.ID)
	if err != nil {
		t.Fatalf("Battlecard: %v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("latest version = %d, want 2", latest.Version)
	}
	history, err := svc.BattlecardHistory(ctx, comp.ID)
	if err != nil {
		t.Fatalf("BattlecardHistory: %v", err)
	}
	if len(history) != 2 || history[0].Version != 2 || history[1].Version != 1 {
		t.Fatalf("history = %+v, want versions [2 1]", history)
	}
}

// WHAT: a configured composer supplies the content; a failing composer falls
// back to the template instead of failing the operation.
func TestGenerateBattlecardComposer(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, WithComposer(composerFunc(func(_ context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "Acme") {
			t.Fatalf("prompt missing competitor name:\n%s", prompt)
		}
		return "# Acme\n\nDrafted by the model.", nil
	})))
	comp := addCompetitor(t, svc)
	bc, err := svc.GenerateBattlecard(ctx, comp.ID)
	if err != nil {
		t.Fatalf("GenerateBattlecard: %v", err)
	}
	if !strings.Contains(bc.ContentMD, "Drafted by the model.") {
		t.Fatalf("composer content not used:\n%s", bc.ContentMD)
	}

	failing := newTestService(t, WithComposer(composerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})))
	comp2 := addCompetitor(t, failing)
	bc2, err := failing.GenerateBattlecard(ctx, comp2.ID)
	if err != nil {
		t.Fatalf("GenerateBattlecard with failing composer: %v", err)
	}
	if !strings.Contains(bc2.ContentMD, "# Acme") {
		t.Fatalf("template fallback missing:\n%s", bc2.ContentMD)
	}
}

// WHAT: manual updates persist the provided content verbatim as the next
// version; empty content and unknown competitors are rejected.
func TestUpdateBattlecard(t *testing.T) {
	svc := newTestService(t)
	comp := addCompetitor(t, svc)
	ctx := context.Background()

	bc, err := svc.UpdateBattlecard(ctx, comp.ID, "# Acme\n\nHand-written notes.")
	if err != nil {
		t.Fatalf("UpdateBattlecard: %v", err)
	}
	if bc.Version != 1 || bc.ContentMD != "# Acme\n\nHand-written notes." {
		t.Fatalf("stored card = %+v", bc)
	}

	if _, err := svc.UpdateBattlecard(ctx, comp.ID, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank content: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.UpdateBattlecard(ctx, "missing", "# X"); !errors.Is(err, ErrCompetitorNotFound) {
		t.Fatalf("unknown competitor: got %v, want ErrCompetitorNotFound", err)
	}
}

// WHAT: a competitor without a battlecard reports ErrBattlecardNotFound.
func TestBattlecardNotFound(t *testing.T) {
	svc := newTestService(t)
	comp := addCompetitor(t, svc)

	_, err := svc.Battlecard(context.Background(), comp.ID)
	if !errors.Is(err, ErrBattlecardNotFound) {
		t.Fatalf("Battlecard: got %v, want ErrBattlecardNotFound", err)
	}
}
