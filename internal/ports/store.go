package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-hydra/internal/domain"
)

// ResultStore persists judged contest results.
type ResultStore interface {
	// SaveResult inserts or updates r by ID, assigning an ID when empty, and
	// bumps the contest revision.
	SaveResult(ctx context.Context, r *domain.ContestResult) error

	// GetResult returns a stored result or domain.ErrNotFound.
	GetResult(ctx context.Context, id string) (*domain.ContestResult, error)

	// ListResults returns a contest's results in insertion order.
	ListResults(ctx context.Context, contestID string) ([]domain.ContestResult, error)

	// ContestRevision returns a counter that changes whenever a result of the
	// contest is written. Unknown contests report 0.
	ContestRevision(ctx context.Context, contestID string) (int64, error)
}

// SessionStore persists interview sessions and their verdict JSON.
type SessionStore interface {
	// CreateSession inserts s, assigning an ID when empty.
	CreateSession(ctx context.Context, s *domain.InterviewSession) error

	// GetSession returns a session or domain.ErrNotFound.
	GetSession(ctx context.Context, id string) (*domain.InterviewSession, error)

	// GetSessionForUpdate is GetSession that also locks the row until the
	// enclosing transaction ends, serializing concurrent writers.
	GetSessionForUpdate(ctx context.Context, id string) (*domain.InterviewSession, error)

	// UpdateSession overwrites status, verdict and completed_at.
	UpdateSession(ctx context.Context, s *domain.InterviewSession) error

	// ListStaleSessions returns sessions in status last updated before cutoff.
	ListStaleSessions(ctx context.Context, status domain.SessionStatus, cutoff time.Time) ([]domain.InterviewSession, error)
}

// AssignmentStore persists the role_assignment_history table.
type AssignmentStore interface {
	// OpenAssignments returns records for (userID, role) with no removal
	// time, oldest first.
	OpenAssignments(ctx context.Context, userID, role string) ([]domain.RoleAssignment, error)

	// ListAssignments returns every record for (userID, role), oldest first.
	ListAssignments(ctx context.Context, userID, role string) ([]domain.RoleAssignment, error)

	// CloseAssignment stamps removal time and reason on an open record.
	CloseAssignment(ctx context.Context, id string, removedAt time.Time, reason domain.RemovalReason) error

	// InsertAssignment inserts a, assigning an ID when empty.
	InsertAssignment(ctx context.Context, a *domain.RoleAssignment) error

	// HasSyntheticAssignment reports whether a phantom record exists for
	// (userID, role).
	HasSyntheticAssignment(ctx context.Context, userID, role string) (bool, error)
}

// EvolutionStore persists HYDRA-EVO records.
type EvolutionStore interface {
	// EvolutionByResult returns the record raised for resultID or
	// domain.ErrNotFound.
	EvolutionByResult(ctx context.Context, resultID string) (*domain.EvolutionRecord, error)

	// EvolutionCodes returns every allocated code.
	EvolutionCodes(ctx context.Context) ([]string, error)

	// InsertEvolution inserts rec. A duplicate code or result fails with
	// ErrConflict.
	InsertEvolution(ctx context.Context, rec *domain.EvolutionRecord) error
}

// UserDirectory resolves users by the roles they hold in Hydra itself
// (supervisor, reviewer), not the model roles of the assignment table.
type UserDirectory interface {
	// UsersWithRole returns the IDs of users holding role.
	UsersWithRole(ctx context.Context, role string) ([]string, error)

	// GrantRole gives userID the role. Granting twice is a no-op.
	GrantRole(ctx context.Context, userID, role string) error
}

// Notifier delivers a notification to its user.
type Notifier interface {
	// Name identifies the delivery channel in logs and metrics.
	Name() string

	// Notify delivers n.
	Notify(ctx context.Context, n domain.Notification) error
}

// NotificationStore is the durable in-app inbox.
type NotificationStore interface {
	Notifier

	// HasNotification reports whether userID already received a
	// notification of kind for reference.
	HasNotification(ctx context.Context, userID string, kind domain.NotificationKind, reference string) (bool, error)

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
}

// Stores groups the repositories that share a connection or transaction.
type Stores interface {
	Results() ResultStore
	Sessions() SessionStore
	Assignments() AssignmentStore
	Evolutions() EvolutionStore
	Notifications() NotificationStore
	Users() UserDirectory
}

// UnitOfWork runs multi-step mutations atomically.
type UnitOfWork interface {
	Stores

	// WithinTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Stores handed to fn are bound to
	// the transaction and must not escape it.
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}
