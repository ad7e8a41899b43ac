package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// battlecardTemplate is the fallback layout used when no LLM composer is
// configured or composition fails. Gaps are left for manual editing via
// UpdateBattlecard.
const battlecardTemplate = `# %s

## Positioning
%s

## Core capabilities
%s

## Pricing & packaging
%s

## Differentiation
### Where we win
%s

### Where they win
%s

## Recent activity
%s

---
*Last updated: %s*
`

const fillInManually = "_(fill in manually)_"

// Battlecard returns the current (highest-version) battlecard for a
// competitor, or ErrBattlecardNotFound when none has been written yet.
func (svc *Service) Battlecard(ctx context.Context, competitorID string) (*Battlecard, error) {
	bc, err := svc.store.LatestBattlecard(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, fmt.Errorf("%w: competitor %s", ErrBattlecardNotFound, competitorID)
	}
	return bc, nil
}

// BattlecardHistory returns all battlecard versions for a competitor,
// newest first.
func (svc *Service) BattlecardHistory(ctx context.Context, competitorID string) ([]*Battlecard, error) {
	if _, err := svc.getCompetitor(ctx, competitorID); err != nil {
		return nil, err
	}
	return svc.store.ListBattlecards(ctx, competitorID)
}

// UpdateBattlecard appends a manually-edited battlecard version.
func (svc *Service) UpdateBattlecard(ctx context.Context, competitorID, content string) (*Battlecard, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: battlecard content is required", ErrInvalidInput)
	}
	if _, err := svc.getCompetitor(ctx, competitorID); err != nil {
		return nil, err
	}
	return svc.saveBattlecardVersion(ctx, competitorID, content)
}

// GenerateBattlecard drafts a battlecard from the competitor's recent change
// events and insights and persists it as the next version. The draft comes
// from the LLM composer when one is configured; otherwise (or when
// composition fails) a template with the recent-activity section filled in.
func (svc *Service) GenerateBattlecard(ctx context.Context, competitorID string) (*Battlecard, error) {
	comp, err := svc.getCompetitor(ctx, competitorID)
	if err != nil {
		return nil, err
	}

	events, err := svc.store.ListChangeEventsForCompetitor(ctx, competitorID, 10)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var insights []*Insight
	for _, ev := range events {
		ins, err := svc.store.ListInsights(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		insights = append(insights, ins...)
	}

	content := ""
	if svc.composer != nil {
		content, err = svc.composer.Compose(ctx, battlecardPrompt(comp, events, insights))
		if err != nil {
			svc.logger.Warn("battlecard composition failed, using template",
				"competitor_id", competitorID, "error", err)
			content = ""
		}
	}
	if content == "" {
		content = battlecardFromTemplate(comp, events)
	}
	return svc.saveBattlecardVersion(ctx, competitorID, content)
}

// saveBattlecardVersion persists content as the competitor's next version.
// The version read and the insert share one transaction so concurrent saves
// cannot claim the same number.
func (svc *Service) saveBattlecardVersion(ctx context.Context, competitorID, content string) (*Battlecard, error) {
	bc := &Battlecard{
		ID:           svc.newID(),
		CompetitorID: competitorID,
		ContentMD:    content,
	}
	err := svc.store.Tx(ctx, func(tx *store.Store) error {
		return tx.InsertBattlecard(ctx, bc)
	})
	if err != nil {
		return nil, fmt.Errorf("save battlecard: %w", err)
	}
	svc.logger.Info("battlecard saved",
		"competitor_id", competitorID, "version", bc.Version)
	return bc, nil
}

func battlecardFromTemplate(comp *Competitor, events []*ChangeEvent) string {
	recent := recentActivityLines(events, 5)
	if recent == "" {
		recent = "No recent changes."
	}
	return fmt.Sprintf(battlecardTemplate,
		comp.Name,
		fillInManually, fillInManually, fillInManually, fillInManually, fillInManually,
		recent,
		time.Now().UTC().Format("2006-01-02 15:04"),
	)
}

func battlecardPrompt(comp *Competitor, events []*ChangeEvent, insights []*Insight) string {
	var b strings.Builder
	b.WriteString("Write a competitor battlecard in Markdown.\n\n## Competitor\n")
	fmt.Fprintf(&b, "- Name: %s\n- Website: %s\n- Category: %s\n",
		comp.Name, orUnknown(comp.Website), orUnknown(comp.Category))

	fmt.Fprintf(&b, "\n## Recent changes (%d)\n", len(events))
	if lines := recentActivityLines(events, 5); lines != "" {
		b.WriteString(lines + "\n")
	}

	fmt.Fprintf(&b, "\n## Insights (%d)\n", len(insights))
	for i, in := range insights {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", strings.ToUpper(in.Impact), clipRunes(in.Rationale, 200))
	}

	b.WriteString(`
## Required sections
1. Positioning: one sentence on product positioning and target users
2. Core capabilities: 3-7 key capabilities
3. Pricing & packaging: as a table
4. Differentiation: where we win, where they win
5. Recent activity: summarize the changes above

Return only the battlecard Markdown, no other commentary.
`)
	return b.String()
}

func recentActivityLines(events []*ChangeEvent, max int) string {
	var lines []string
	for i, ev := range events {
		if i == max {
			break
		}
		day := time.UnixMilli(ev.CreatedAt).UTC().Format("2006-01-02")
		lines = append(lines, fmt.Sprintf("- %s: %s", day, ev.DiffSummary))
	}
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
