package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// WeeklyDigest renders a markdown summary of all change events recorded
// since the given time, grouped by competitor. Competitors with no events
// are omitted; an empty week renders a short "no changes" note.
func (svc *Service) WeeklyDigest(ctx context.Context, since time.Time) (string, error) {
	events, err := svc.store.ListChangeEventsSince(ctx, since.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Competitor digest\n\n_%s — %s_\n\n",
		since.UTC().Format("2006-01-02"), time.Now().UTC().Format("2006-01-02"))

	if len(events) == 0 {
		b.WriteString("No changes detected this period.\n")
		return b.String(), nil
	}

	type group struct {
		name   string
		events []*ChangeEvent
		urls   map[string]string // event id -> source URL
	}
	groups := make(map[string]*group)
	sources := make(map[string]*Source)

	for _, ev := range events {
		src, ok := sources[ev.SourceID]
		if !ok {
			src, err = svc.store.GetSource(ctx, ev.SourceID)
			if err != nil {
				return "", err
			}
			if src == nil {
				// Source deleted after the event; skip it.
				continue
			}
			sources[ev.SourceID] = src
		}
		g, ok := groups[src.CompetitorID]
		if !ok {
			comp, err := svc.store.GetCompetitor(ctx, src.CompetitorID)
			if err != nil {
				return "", err
			}
			name := src.CompetitorID
			if comp != nil {
				name = comp.Name
			}
			g = &group{name: name, urls: make(map[string]string)}
			groups[src.CompetitorID] = g
		}
		g.events = append(g.events, ev)
		g.urls[ev.ID] = src.URL
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })

	for _, g := range ordered {
		fmt.Fprintf(&b, "## %s\n\n", g.name)
		for _, ev := range g.events {
			day := time.UnixMilli(ev.CreatedAt).UTC().Format("2006-01-02")
			fmt.Fprintf(&b, "- %s — %s (%s)\n", day, ev.DiffSummary, g.urls[ev.ID])
			insights, err := svc.store.ListInsights(ctx, ev.ID)
			if err != nil {
				return "", err
			}
			for _, in := range insights {
				fmt.Fprintf(&b, "  - %s impact, %s: %s\n", in.Impact, in.ChangeType, in.Intent)
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
