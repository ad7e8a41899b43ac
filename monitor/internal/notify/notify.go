// Package notify resolves the subscriptions interested in a change event and
// dispatches a payload to each, best-effort. One subscriber's failure never
// blocks delivery to the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// Channel is the closed set of delivery mechanisms. Subscriptions store it
// as text; ParseChannel is the only place the string form is interpreted.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelEmail   Channel = "email"
)

// ParseChannel maps a stored channel string onto the closed variant set.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWebhook, ChannelEmail:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("notify: unknown channel %q", s)
	}
}

// Dispatcher delivers one payload to one subscription endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub *store.Subscription, p *Payload) error
}

// Config configures the fanout.
type Config struct {
	// WebhookTimeout bounds each webhook POST. Default: 10s.
	WebhookTimeout time.Duration
}

func (c *Config) defaults() {
	if c.WebhookTimeout <= 0 {
		c.WebhookTimeout = 10 * time.Second
	}
}

// Fanout dispatches change events to matching realtime subscriptions.
type Fanout struct {
	store       *store.Store
	dispatchers map[Channel]Dispatcher
	logger      *slog.Logger
}

// New builds a Fanout with the standard dispatcher per channel variant.
func New(st *store.Store, cfg Config, logger *slog.Logger) *Fanout {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")
	return &Fanout{
		store: st,
		dispatchers: map[Channel]Dispatcher{
			ChannelWebhook: NewWebhookDispatcher(cfg.WebhookTimeout, logger),
			ChannelEmail:   NewEmailDispatcher(logger),
		},
		logger: logger,
	}
}

// SetDispatcher replaces the dispatcher for one channel. Test hook.
func (f *Fanout) SetDispatcher(ch Channel, d Dispatcher) {
	f.dispatchers[ch] = d
}

// Notify resolves active realtime subscriptions for the event's owning
// competitor and delivers the payload to each. Errors are logged per
// subscription and never returned; fanout is best-effort by contract.
//
// Category-targeted subscriptions are skipped: matching a competitor to a
// category is deferred until category semantics are decided.
func (f *Fanout) Notify(ctx context.Context, src *store.Source, ev *store.ChangeEvent) {
	logger := f.logger.With("event_id", ev.ID, "source_id", src.ID)

	subs, err := f.store.ListRealtimeSubscriptions(ctx, src.CompetitorID)
	if err != nil {
		logger.Error("subscription lookup failed", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	insights, err := f.store.ListInsights(ctx, ev.ID)
	if err != nil {
		logger.Warn("insight lookup failed, notifying without insights", "error", err)
		insights = nil
	}
	payload := BuildPayload(ev, insights)

	delivered := 0
	for _, sub := range subs {
		if sub.TargetType == "category" {
			logger.Debug("category subscription skipped", "subscription_id", sub.ID)
			continue
		}
		ch, err := ParseChannel(sub.Channel)
		if err != nil {
			logger.Warn("subscription with unknown channel skipped",
				"subscription_id", sub.ID, "channel", sub.Channel)
			continue
		}
		if err := f.dispatchers[ch].Dispatch(ctx, sub, payload); err != nil {
			logger.Warn("dispatch failed",
				"subscription_id", sub.ID, "channel", sub.Channel, "error", err)
			continue
		}
		delivered++
	}
	logger.Info("fanout complete", "matched", len(subs), "delivered", delivered)
}
