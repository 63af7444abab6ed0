package domain

import "time"

// NotificationKind classifies a user notification.
type NotificationKind string

// Notification kinds.
const (
	NotificationEvolution       NotificationKind = "evolution"
	NotificationPendingDecision NotificationKind = "pending_decision"
)

// Notification is a message delivered to a single user.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Reference string           `json:"reference,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
