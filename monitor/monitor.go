// Package monitor is the competitor change-monitoring service: per-source
// cron scheduling, fetch/diff/event pipeline, annotation, and notification
// fanout behind one orchestrator.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Adversit/competitor-intel/idgen"
	"github.com/Adversit/competitor-intel/monitor/internal/diff"
	"github.com/Adversit/competitor-intel/monitor/internal/fetch"
	"github.com/Adversit/competitor-intel/monitor/internal/htmlstore"
	"github.com/Adversit/competitor-intel/monitor/internal/insight"
	"github.com/Adversit/competitor-intel/monitor/internal/notify"
	"github.com/Adversit/competitor-intel/monitor/internal/pipeline"
	"github.com/Adversit/competitor-intel/monitor/internal/schedule"
	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// Service is the main monitoring orchestrator.
type Service struct {
	store     *store.Store
	fetcher   fetch.Fetcher
	closer    interface{ Close() error } // set when we own the fetcher
	engine    *diff.Engine
	pipeline  *pipeline.Pipeline
	scheduler *schedule.Scheduler
	annotator insight.Annotator
	composer  insight.Composer
	fanout    *notify.Fanout
	logger    *slog.Logger
	config    *Config
	newID     func() string
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithFetcher overrides the default fetch client. Use in tests with canned
// fetchers or httptest-backed clients.
func WithFetcher(f fetch.Fetcher) ServiceOption {
	return func(svc *Service) { svc.fetcher = f }
}

// WithAnnotator overrides the annotation collaborator.
func WithAnnotator(a insight.Annotator) ServiceOption {
	return func(svc *Service) { svc.annotator = a }
}

// WithComposer overrides the battlecard drafting collaborator.
func WithComposer(c insight.Composer) ServiceOption {
	return func(svc *Service) { svc.composer = c }
}

// New creates a monitoring Service on an already-opened database. The schema
// is applied if missing.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	st := store.NewStore(db)

	svc := &Service{
		store:  st,
		engine: diff.New(),
		logger: logger,
		config: cfg,
		newID:  idgen.New,
	}
	if a := insight.New(cfg.Insight, logger); a != nil {
		svc.annotator = a
		svc.composer = a
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.fetcher == nil {
		client := fetch.NewClient(cfg.Fetch)
		svc.fetcher = client
		svc.closer = client
	}

	var html *htmlstore.Store
	if cfg.HTMLDir != "" {
		html = htmlstore.New(cfg.HTMLDir)
	}
	svc.fanout = notify.New(st, cfg.Notify, logger)
	svc.pipeline = pipeline.New(st, svc.fetcher, html, svc.annotator, svc.fanout, logger)
	svc.scheduler = schedule.New(svc.pipeline.Run, cfg.Schedule, logger)

	return svc, nil
}

// Start registers every active source with the scheduler and launches it.
// Sources with unparsable schedules are logged and skipped, never fatal.
func (svc *Service) Start(ctx context.Context) error {
	sources, err := svc.store.ListActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}
	for _, src := range sources {
		if err := svc.scheduler.Add(src.ID, src.Schedule); err != nil {
			svc.logger.Warn("source left unscheduled",
				"source_id", src.ID, "schedule", src.Schedule, "error", err)
		}
	}
	svc.scheduler.Start(ctx)
	svc.logger.Info("monitor: started", "sources", len(sources))
	return nil
}

// Close stops the scheduler and releases fetch resources.
func (svc *Service) Close() error {
	svc.scheduler.Stop()
	if svc.closer != nil {
		if err := svc.closer.Close(); err != nil {
			return err
		}
	}
	svc.logger.Info("monitor: closed")
	return nil
}

// --- Competitors ---

// AddCompetitor registers a competitor.
func (svc *Service) AddCompetitor(ctx context.Context, c *Competitor) error {
	if c.Name == "" {
		return fmt.Errorf("%w: competitor name is required", ErrInvalidInput)
	}
	if c.ID == "" {
		c.ID = svc.newID()
	}
	return svc.store.InsertCompetitor(ctx, c)
}

// ListCompetitors returns all competitors.
func (svc *Service) ListCompetitors(ctx context.Context) ([]*Competitor, error) {
	return svc.store.ListCompetitors(ctx)
}

// getCompetitor loads a competitor or reports ErrCompetitorNotFound.
func (svc *Service) getCompetitor(ctx context.Context, id string) (*Competitor, error) {
	comp, err := svc.store.GetCompetitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, fmt.Errorf("%w: %s", ErrCompetitorNotFound, id)
	}
	return comp, nil
}

// DeleteCompetitor removes a competitor, its sources (unscheduling each),
// and their snapshots and events via cascade.
func (svc *Service) DeleteCompetitor(ctx context.Context, id string) error {
	sources, err := svc.store.ListSourcesForCompetitor(ctx, id)
	if err != nil {
		return err
	}
	for _, src := range sources {
		svc.scheduler.Remove(src.ID)
	}
	return svc.store.DeleteCompetitor(ctx, id)
}

// --- Sources ---

// AddSource validates and persists a new source, then registers its
// recurring job. A malformed cron expression is rejected synchronously with
// ErrBadSchedule and nothing is persisted.
func (svc *Service) AddSource(ctx context.Context, s *Source) error {
	if s.ID == "" {
		s.ID = svc.newID()
	}
	if s.Schedule == "" {
		s.Schedule = "0 8 * * *"
	}
	if s.Sensitivity == "" {
		s.Sensitivity = "medium"
	}

	if err := validateSource(s); err != nil {
		return err
	}
	if err := schedule.Validate(s.Schedule); err != nil {
		return err
	}

	comp, err := svc.store.GetCompetitor(ctx, s.CompetitorID)
	if err != nil {
		return err
	}
	if comp == nil {
		return fmt.Errorf("%w: %s", ErrCompetitorNotFound, s.CompetitorID)
	}

	count, err := svc.store.CountSources(ctx)
	if err != nil {
		return fmt.Errorf("count sources: %w", err)
	}
	if count >= MaxSources {
		return fmt.Errorf("%w: maximum %d sources", ErrQuotaExceeded, MaxSources)
	}

	existing, _ := svc.store.GetSourceByURL(ctx, s.URL)
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, s.URL)
	}

	if err := svc.store.InsertSource(ctx, s); err != nil {
		return err
	}
	if s.IsActive {
		if err := svc.scheduler.Add(s.ID, s.Schedule); err != nil {
			// Expression was validated above; a failure here is a bug.
			svc.logger.Error("schedule registration failed after validation",
				"source_id", s.ID, "error", err)
		}
	}
	svc.logger.Info("source added", "source_id", s.ID, "url", s.URL, "schedule", s.Schedule)
	return nil
}

// GetSource returns one source.
func (svc *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	src, err := svc.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return src, nil
}

// ListSources returns all sources.
func (svc *Service) ListSources(ctx context.Context) ([]*Source, error) {
	return svc.store.ListSources(ctx)
}

// UpdateSource updates a source's mutable fields and re-registers its job.
// Missing fields keep their current values.
func (svc *Service) UpdateSource(ctx context.Context, s *Source) error {
	existing, err := svc.GetSource(ctx, s.ID)
	if err != nil {
		return err
	}
	if s.URL == "" {
		s.URL = existing.URL
	}
	if s.SourceType == "" {
		s.SourceType = existing.SourceType
	}
	if s.FetchMode == "" {
		s.FetchMode = existing.FetchMode
	}
	if s.Schedule == "" {
		s.Schedule = existing.Schedule
	}
	if s.Sensitivity == "" {
		s.Sensitivity = existing.Sensitivity
	}
	s.CompetitorID = existing.CompetitorID

	if err := validateSource(s); err != nil {
		return err
	}
	if err := schedule.Validate(s.Schedule); err != nil {
		return err
	}

	if err := svc.store.UpdateSource(ctx, s); err != nil {
		return err
	}
	if s.IsActive {
		if err := svc.scheduler.Add(s.ID, s.Schedule); err != nil {
			svc.logger.Error("schedule registration failed after validation",
				"source_id", s.ID, "error", err)
		}
	} else {
		svc.scheduler.Remove(s.ID)
	}
	return nil
}

// SetSourceActive toggles monitoring for a source, registering or removing
// its recurring job.
func (svc *Service) SetSourceActive(ctx context.Context, id string, active bool) error {
	src, err := svc.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.store.SetSourceActive(ctx, id, active); err != nil {
		return err
	}
	if active {
		return svc.scheduler.Add(id, src.Schedule)
	}
	svc.scheduler.Remove(id)
	return nil
}

// DeleteSource removes a source and its recurring job.
func (svc *Service) DeleteSource(ctx context.Context, id string) error {
	if _, err := svc.GetSource(ctx, id); err != nil {
		return err
	}
	svc.scheduler.Remove(id)
	return svc.store.DeleteSource(ctx, id)
}

// RunNow triggers an immediate pipeline run for a source, subject to the
// same one-run-in-flight rule as scheduled triggers.
func (svc *Service) RunNow(ctx context.Context, id string) error {
	if _, err := svc.GetSource(ctx, id); err != nil {
		return err
	}
	svc.scheduler.RunNow(id)
	return nil
}

// TestFetch fetches a source synchronously and reports what the diff gate
// would do against the current baseline. Nothing is persisted; the raw
// fetch or extraction error surfaces directly to the caller.
func (svc *Service) TestFetch(ctx context.Context, id string) (*TestFetchResult, error) {
	src, err := svc.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := svc.fetcher.Fetch(ctx, src.URL, src.FetchMode == "headless")
	if err != nil {
		return nil, err
	}

	out := &TestFetchResult{
		Title:       res.Title,
		StatusCode:  res.StatusCode,
		ContentHash: res.Hash,
		TextLength:  len(res.Text),
	}
	prev, err := svc.store.PreviousSnapshot(ctx, src.ID, "")
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if change := svc.engine.Compute(prev.ExtractedText, res.Text,
			diff.ParseSensitivity(src.Sensitivity)); change != nil {
			out.WouldEmit = true
			out.DiffSummary = change.Summary
		}
	}
	return out, nil
}

// --- Events, snapshots, history ---

// ListEvents returns recorded change events for a source, newest first.
func (svc *Service) ListEvents(ctx context.Context, sourceID string, limit int) ([]*ChangeEvent, error) {
	return svc.store.ListChangeEvents(ctx, sourceID, limit)
}

// GetEvent returns one change event.
func (svc *Service) GetEvent(ctx context.Context, id string) (*ChangeEvent, error) {
	ev, err := svc.store.GetChangeEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return ev, nil
}

// SubmitFeedback records whether an event was useful. Votes feed future
// gate tuning; they never alter the event itself.
func (svc *Service) SubmitFeedback(ctx context.Context, eventID, userID string, isUseful bool) error {
	if _, err := svc.GetEvent(ctx, eventID); err != nil {
		return err
	}
	return svc.store.InsertFeedback(ctx, &Feedback{
		ID:            svc.newID(),
		ChangeEventID: eventID,
		UserID:        userID,
		IsUseful:      isUseful,
	})
}

// ListFeedback returns the votes recorded for an event, oldest first.
func (svc *Service) ListFeedback(ctx context.Context, eventID string) ([]*Feedback, error) {
	return svc.store.ListFeedback(ctx, eventID)
}

// ListInsights returns insights attached to an event.
func (svc *Service) ListInsights(ctx context.Context, eventID string) ([]*Insight, error) {
	return svc.store.ListInsights(ctx, eventID)
}

// ListSnapshots returns snapshots for a source, newest first.
func (svc *Service) ListSnapshots(ctx context.Context, sourceID string, limit int) ([]*Snapshot, error) {
	return svc.store.ListSnapshots(ctx, sourceID, limit)
}

// FetchHistory returns recent fetch attempts for a source.
func (svc *Service) FetchHistory(ctx context.Context, sourceID string, limit int) ([]*FetchLogEntry, error) {
	return svc.store.FetchHistory(ctx, sourceID, limit)
}

// --- Subscriptions ---

// AddSubscription registers interest in a competitor's changes.
func (svc *Service) AddSubscription(ctx context.Context, sub *Subscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("%w: subscription endpoint is required", ErrInvalidInput)
	}
	if sub.Channel != "" {
		if _, err := notify.ParseChannel(sub.Channel); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if sub.ID == "" {
		sub.ID = svc.newID()
	}
	return svc.store.InsertSubscription(ctx, sub)
}

// ListSubscriptions returns all subscriptions.
func (svc *Service) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx)
}

// DeleteSubscription removes a subscription.
func (svc *Service) DeleteSubscription(ctx context.Context, id string) error {
	return svc.store.DeleteSubscription(ctx, id)
}

// validateSource checks field values shared by add and update.
func validateSource(s *Source) error {
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: source URL must be http(s)", ErrInvalidInput)
	}
	switch s.SourceType {
	case "", "homepage", "pricing", "changelog", "docs":
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, s.SourceType)
	}
	switch s.FetchMode {
	case "", "http", "headless":
	default:
		return fmt.Errorf("%w: unknown fetch mode %q", ErrInvalidInput, s.FetchMode)
	}
	switch strings.ToLower(s.Sensitivity) {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("%w: unknown sensitivity %q", ErrInvalidInput, s.Sensitivity)
	}
	return nil
}
