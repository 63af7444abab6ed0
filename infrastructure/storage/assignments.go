package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-hydra/internal/domain"
)

const assignmentColumns = `id, user_id, role, model_id, assigned_at, removed_at, removal_reason, interview_avg_score, is_synthetic, metadata`

type assignmentStore struct{ c conn }

// OpenAssignments implements ports.AssignmentStore.
func (s assignmentStore) OpenAssignments(ctx context.Context, userID, role string) ([]domain.RoleAssignment, error) {
	return s.list(ctx, "OpenAssignments",
		`SELECT `+assignmentColumns+` FROM role_assignment_history
		 WHERE user_id = ? AND role = ? AND removed_at IS NULL
		 ORDER BY assigned_at, id`,
		userID, role)
}

// ListAssignments implements ports.AssignmentStore.
func (s assignmentStore) ListAssignments(ctx context.Context, userID, role string) ([]domain.RoleAssignment, error) {
	return s.list(ctx, "ListAssignments",
		`SELECT `+assignmentColumns+` FROM role_assignment_history
		 WHERE user_id = ? AND role = ?
		 ORDER BY assigned_at, id`,
		userID, role)
}

// CloseAssignment implements ports.AssignmentStore. Closing a record that is
// missing or already closed fails with domain.ErrNotFound.
func (s assignmentStore) CloseAssignment(ctx context.Context, id string, removedAt time.Time, reason domain.RemovalReason) error {
	res, err := s.c.exec(ctx,
		`UPDATE role_assignment_history SET removed_at = ?, removal_reason = ?
		 WHERE id = ? AND removed_at IS NULL`,
		removedAt.UTC(), string(reason), id,
	)
	if err != nil {
		return mapError("role_assignment_history", "CloseAssignment", err)
	}
	return mapError("role_assignment_history", "CloseAssignment", requireAffected(res))
}

// InsertAssignment implements ports.AssignmentStore.
func (s assignmentStore) InsertAssignment(ctx context.Context, a *domain.RoleAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	metadata := ""
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return mapError("role_assignment_history", "InsertAssignment", err)
		}
		metadata = string(b)
	}

	_, err := s.c.exec(ctx,
		`INSERT INTO role_assignment_history (`+assignmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Role, a.ModelID, a.AssignedAt.UTC(), nullTime(a.RemovedAt),
		string(a.RemovalReason), nullFloat(a.InterviewAvgScore), a.IsSynthetic, metadata,
	)
	return mapError("role_assignment_history", "InsertAssignment", err)
}

// HasSyntheticAssignment implements ports.AssignmentStore.
func (s assignmentStore) HasSyntheticAssignment(ctx context.Context, userID, role string) (bool, error) {
	var n int
	err := s.c.queryRow(ctx,
		`SELECT COUNT(*) FROM role_assignment_history WHERE user_id = ? AND role = ? AND is_synthetic = ?`,
		userID, role, true,
	).Scan(&n)
	if err != nil {
		return false, mapError("role_assignment_history", "HasSyntheticAssignment", err)
	}
	return n > 0, nil
}

func (s assignmentStore) list(ctx context.Context, op, query string, args ...any) ([]domain.RoleAssignment, error) {
	rows, err := s.c.query(ctx, query, args...)
	if err != nil {
		return nil, mapError("role_assignment_history", op, err)
	}
	defer rows.Close()

	out := make([]domain.RoleAssignment, 0)
	for rows.Next() {
		var (
			a         domain.RoleAssignment
			removedAt sql.NullTime
			reason    string
			avg       sql.NullFloat64
			metadata  string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Role, &a.ModelID, &a.AssignedAt, &removedAt,
			&reason, &avg, &a.IsSynthetic, &metadata); err != nil {
			return nil, mapError("role_assignment_history", op, err)
		}
		a.AssignedAt = a.AssignedAt.UTC()
		a.RemovedAt = timePtr(removedAt)
		a.RemovalReason = domain.RemovalReason(reason)
		a.InterviewAvgScore = floatPtr(avg)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
				return nil, mapError("role_assignment_history", op, err)
			}
		}
		out = append(out, a)
	}
	return out, mapError("role_assignment_history", op, rows.Err())
}
