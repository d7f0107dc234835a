package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProgressRepository stores autosave drafts as JSONB, upsert keyed by
// (user_id, exam_id). Last write wins; the draft is advisory state only.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

func (r *ProgressRepository) SaveProgress(ctx context.Context, progress domain.Progress) error {
	raw, err := json.Marshal(progress.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_progress (user_id, exam_id, answers, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, exam_id) DO UPDATE SET answers=EXCLUDED.answers, updated_at=EXCLUDED.updated_at`,
		progress.UserID, progress.ExamID, raw, progress.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (r *ProgressRepository) LoadProgress(ctx context.Context, userID, examID string) (domain.AnswerSet, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT answers FROM exam_progress WHERE user_id=$1 AND exam_id=$2`,
		userID, examID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	var answers domain.AnswerSet
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return answers, nil
}
