package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-hydra/internal/domain"
)

type notificationStore struct{ c conn }

// Name implements ports.Notifier.
func (notificationStore) Name() string { return "database" }

// Notify implements ports.Notifier by writing n to the in-app inbox.
func (s notificationStore) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, body, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, n.Reference, n.CreatedAt.UTC(),
	)
	return mapError("notifications", "Notify", err)
}

// HasNotification implements ports.NotificationStore.
func (s notificationStore) HasNotification(ctx context.Context, userID string, kind domain.NotificationKind, reference string) (bool, error) {
	var n int
	err := s.c.queryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND kind = ? AND reference = ?`,
		userID, string(kind), reference,
	).Scan(&n)
	if err != nil {
		return false, mapError("notifications", "HasNotification", err)
	}
	return n > 0, nil
}

// ListNotifications implements ports.NotificationStore.
func (s notificationStore) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := s.c.query(ctx,
		`SELECT id, user_id, kind, title, body, reference, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, mapError("notifications", "ListNotifications", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n    domain.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &n.Reference, &n.CreatedAt); err != nil {
			return nil, mapError("notifications", "ListNotifications", err)
		}
		n.Kind = domain.NotificationKind(kind)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, mapError("notifications", "ListNotifications", rows.Err())
}
