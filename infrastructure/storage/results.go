package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-hydra/internal/domain"
)

const resultColumns = `id, contest_id, model_id, round_id, round_index, user_score, arbiter_score, criteria_scores, response_text`

type resultStore struct{ c conn }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SaveResult implements ports.ResultStore. The contest revision is bumped in
// the same transaction; a new result takes the bumped revision as its
// position so ListResults keeps insertion order.
func (s resultStore) SaveResult(ctx context.Context, r *domain.ContestResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	criteria, err := encodeCriteria(r.CriteriaScores)
	if err != nil {
		return mapError("contest_results", "SaveResult", err)
	}

	return s.c.atomically(ctx, func(c conn) error {
		var rev int64
		err := c.queryRow(ctx,
			`INSERT INTO contests (id, revision) VALUES (?, 1)
			 ON CONFLICT (id) DO UPDATE SET revision = contests.revision + 1
			 RETURNING revision`,
			r.ContestID,
		).Scan(&rev)
		if err != nil {
			return mapError("contests", "SaveResult", err)
		}

		_, err = c.exec(ctx,
			`INSERT INTO contest_results (id, contest_id, seq, model_id, round_id, round_index, user_score, arbiter_score, criteria_scores, response_text, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				model_id = excluded.model_id,
				round_id = excluded.round_id,
				round_index = excluded.round_index,
				user_score = excluded.user_score,
				arbiter_score = excluded.arbiter_score,
				criteria_scores = excluded.criteria_scores,
				response_text = excluded.response_text,
				updated_at = excluded.updated_at`,
			r.ID, r.ContestID, rev, r.ModelID, r.RoundID, nullInt(r.RoundIndex),
			nullFloat(r.UserScore), nullFloat(r.ArbiterScore), criteria, r.ResponseText,
			time.Now().UTC(),
		)
		return mapError("contest_results", "SaveResult", err)
	})
}

// GetResult implements ports.ResultStore.
func (s resultStore) GetResult(ctx context.Context, id string) (*domain.ContestResult, error) {
	row := s.c.queryRow(ctx, `SELECT `+resultColumns+` FROM contest_results WHERE id = ?`, id)
	r, err := scanResult(row)
	if err != nil {
		return nil, mapError("contest_results", "GetResult", err)
	}
	return r, nil
}

// ListResults implements ports.ResultStore.
func (s resultStore) ListResults(ctx context.Context, contestID string) ([]domain.ContestResult, error) {
	rows, err := s.c.query(ctx,
		`SELECT `+resultColumns+` FROM contest_results WHERE contest_id = ? ORDER BY seq, id`, contestID)
	if err != nil {
		return nil, mapError("contest_results", "ListResults", err)
	}
	defer rows.Close()

	results := make([]domain.ContestResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, mapError("contest_results", "ListResults", err)
		}
		results = append(results, *r)
	}
	return results, mapError("contest_results", "ListResults", rows.Err())
}

// ContestRevision implements ports.ResultStore.
func (s resultStore) ContestRevision(ctx context.Context, contestID string) (int64, error) {
	var rev int64
	err := s.c.queryRow(ctx, `SELECT revision FROM contests WHERE id = ?`, contestID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError("contests", "ContestRevision", err)
	}
	return rev, nil
}

func scanResult(row rowScanner) (*domain.ContestResult, error) {
	var (
		r            domain.ContestResult
		roundIndex   sql.NullInt64
		userScore    sql.NullFloat64
		arbiterScore sql.NullFloat64
		criteria     string
	)
	if err := row.Scan(&r.ID, &r.ContestID, &r.ModelID, &r.RoundID, &roundIndex,
		&userScore, &arbiterScore, &criteria, &r.ResponseText); err != nil {
		return nil, err
	}
	if roundIndex.Valid {
		r.RoundIndex = domain.Int(int(roundIndex.Int64))
	}
	r.UserScore = floatPtr(userScore)
	r.ArbiterScore = floatPtr(arbiterScore)
	if criteria != "" {
		if err := json.Unmarshal([]byte(criteria), &r.CriteriaScores); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func encodeCriteria(c domain.CriteriaScores) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	b, err := json.Marshal(c)
	return string(b), err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
