package notify

import (
	"context"
	"log/slog"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// EmailDispatcher is a stub: outbound mail is an external transport. It logs
// what would have been sent so the fanout path stays exercisable end to end.
type EmailDispatcher struct {
	logger *slog.Logger
}

func NewEmailDispatcher(logger *slog.Logger) *EmailDispatcher {
	return &EmailDispatcher{logger: logger}
}

func (d *EmailDispatcher) Dispatch(_ context.Context, sub *store.Subscription, p *Payload) error {
	d.logger.Info("email notification (stub)",
		"endpoint", sub.Endpoint, "event_id", p.EventID, "summary", p.DiffSummary)
	return nil
}
