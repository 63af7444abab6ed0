package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/ahrav/go-hydra/internal/domain"
)

type evolutionStore struct{ c conn }

// EvolutionByResult implements ports.EvolutionStore.
func (s evolutionStore) EvolutionByResult(ctx context.Context, resultID string) (*domain.EvolutionRecord, error) {
	var r domain.EvolutionRecord
	err := s.c.queryRow(ctx,
		`SELECT id, code, contest_id, result_id, model_id, round_id, user_score, arbiter_score, delta, hypothesis, created_at
		 FROM evolution_records WHERE result_id = ?`, resultID,
	).Scan(&r.ID, &r.Code, &r.ContestID, &r.ResultID, &r.ModelID, &r.RoundID,
		&r.UserScore, &r.ArbiterScore, &r.Delta, &r.Hypothesis, &r.CreatedAt)
	if err != nil {
		return nil, mapError("evolution_records", "EvolutionByResult", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// EvolutionCodes implements ports.EvolutionStore.
func (s evolutionStore) EvolutionCodes(ctx context.Context) ([]string, error) {
	rows, err := s.c.query(ctx, `SELECT code FROM evolution_records`)
	if err != nil {
		return nil, mapError("evolution_records", "EvolutionCodes", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, mapError("evolution_records", "EvolutionCodes", err)
		}
		codes = append(codes, code)
	}
	return codes, mapError("evolution_records", "EvolutionCodes", rows.Err())
}

// InsertEvolution implements ports.EvolutionStore.
func (s evolutionStore) InsertEvolution(ctx context.Context, rec *domain.EvolutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO evolution_records (id, code, contest_id, result_id, model_id, round_id, user_score, arbiter_score, delta, hypothesis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Code, rec.ContestID, rec.ResultID, rec.ModelID, rec.RoundID,
		rec.UserScore, rec.ArbiterScore, rec.Delta, rec.Hypothesis, rec.CreatedAt.UTC(),
	)
	return mapError("evolution_records", "InsertEvolution", err)
}
