package store

import (
	"context"
	"fmt"
	"time"
)

const subscriptionColumns = `id, user_id, target_type, target_id, notify_type,
	channel, endpoint, is_active, created_at`

// InsertSubscription registers interest in a competitor or category.
func (s *Store) InsertSubscription(ctx context.Context, sub *Subscription) error {
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().UnixMilli()
	}
	if sub.TargetType == "" {
		sub.TargetType = "competitor"
	}
	if sub.NotifyType == "" {
		sub.NotifyType = "realtime"
	}
	if sub.Channel == "" {
		sub.Channel = "webhook"
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, target_type, target_id,
		notify_type, channel, endpoint, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.TargetType, sub.TargetID,
		sub.NotifyType, sub.Channel, sub.Endpoint, sub.IsActive, sub.CreatedAt,
	)
	return err
}

// ListSubscriptions returns all subscriptions, newest first.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at DESC`)
}

// ListRealtimeSubscriptions returns active realtime subscriptions targeting
// the given competitor directly, plus active category subscriptions (which
// the fanout currently skips — category matching is deferred).
func (s *Store) ListRealtimeSubscriptions(ctx context.Context, competitorID string) ([]*Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE is_active = 1 AND notify_type = 'realtime'
		  AND (target_type = 'category' OR (target_type = 'competitor' AND target_id = ?))
		ORDER BY created_at ASC`, competitorID)
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		var active int
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.TargetType, &sub.TargetID,
			&sub.NotifyType, &sub.Channel, &sub.Endpoint, &active, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.IsActive = active != 0
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}
