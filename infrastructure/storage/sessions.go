package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-hydra/internal/domain"
)

const sessionColumns = `id, user_id, role, candidate_model, transcript, status, verdict, completed_at, created_at, updated_at`

type sessionStore struct{ c conn }

// CreateSession implements ports.SessionStore.
func (s sessionStore) CreateSession(ctx context.Context, sess *domain.InterviewSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = domain.StatusBriefing
	}
	verdict, err := encodeVerdict(sess.Verdict)
	if err != nil {
		return mapError("interview_sessions", "CreateSession", err)
	}

	_, err = s.c.exec(ctx,
		`INSERT INTO interview_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Role, sess.CandidateModel, sess.Transcript, string(sess.Status),
		verdict, nullTime(sess.CompletedAt), sess.CreatedAt.UTC(), sess.UpdatedAt,
	)
	return mapError("interview_sessions", "CreateSession", err)
}

// GetSession implements ports.SessionStore.
func (s sessionStore) GetSession(ctx context.Context, id string) (*domain.InterviewSession, error) {
	row := s.c.queryRow(ctx, `SELECT `+sessionColumns+` FROM interview_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, mapError("interview_sessions", "GetSession", err)
	}
	return sess, nil
}

// GetSessionForUpdate implements ports.SessionStore. Postgres takes a row
// lock; sqlite transactions already run one at a time on its single
// connection.
func (s sessionStore) GetSessionForUpdate(ctx context.Context, id string) (*domain.InterviewSession, error) {
	row := s.c.queryRow(ctx, selectSessionForUpdate(s.c.dialect), id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, mapError("interview_sessions", "GetSessionForUpdate", err)
	}
	return sess, nil
}

func selectSessionForUpdate(d Dialect) string {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = ?`
	if d == DialectPostgres {
		query += ` FOR UPDATE`
	}
	return query
}

// UpdateSession implements ports.SessionStore.
func (s sessionStore) UpdateSession(ctx context.Context, sess *domain.InterviewSession) error {
	verdict, err := encodeVerdict(sess.Verdict)
	if err != nil {
		return mapError("interview_sessions", "UpdateSession", err)
	}
	sess.UpdatedAt = time.Now().UTC()

	res, err := s.c.exec(ctx,
		`UPDATE interview_sessions SET status = ?, verdict = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(sess.Status), verdict, nullTime(sess.CompletedAt), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return mapError("interview_sessions", "UpdateSession", err)
	}
	return mapError("interview_sessions", "UpdateSession", requireAffected(res))
}

// ListStaleSessions implements ports.SessionStore.
func (s sessionStore) ListStaleSessions(ctx context.Context, status domain.SessionStatus, cutoff time.Time) ([]domain.InterviewSession, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE status = ? AND updated_at < ? ORDER BY updated_at, id`,
		string(status), cutoff.UTC(),
	)
	if err != nil {
		return nil, mapError("interview_sessions", "ListStaleSessions", err)
	}
	defer rows.Close()

	var out []domain.InterviewSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, mapError("interview_sessions", "ListStaleSessions", err)
		}
		out = append(out, *sess)
	}
	return out, mapError("interview_sessions", "ListStaleSessions", rows.Err())
}

func scanSession(row rowScanner) (*domain.InterviewSession, error) {
	var (
		sess        domain.InterviewSession
		status      string
		verdict     sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Role, &sess.CandidateModel, &sess.Transcript,
		&status, &verdict, &completedAt, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Status = domain.SessionStatus(status)
	sess.CompletedAt = timePtr(completedAt)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	if verdict.Valid && verdict.String != "" {
		sess.Verdict = &domain.Verdict{}
		if err := json.Unmarshal([]byte(verdict.String), sess.Verdict); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}

func encodeVerdict(v *domain.Verdict) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// requireAffected reports sql.ErrNoRows, which mapError turns into
// domain.ErrNotFound, when an update matched no row.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
