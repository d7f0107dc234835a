package postgres

import (
	"context"
	"errors"
	"fmt"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SubmissionRepository stores final attempts. The (user_id, exam_id) primary
// key is the at-most-once guarantee; concurrent submits race on the insert and
// exactly one wins.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// InsertSubmission writes the submission and clears the draft in one
// transaction. ON CONFLICT DO NOTHING keeps the duplicate check and the insert
// atomic without taking explicit locks.
func (r *SubmissionRepository) InsertSubmission(ctx context.Context, sub domain.Submission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO exam_submissions (user_id, exam_id, score, submitted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, exam_id) DO NOTHING`,
		sub.UserID, sub.ExamID, sub.Score, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateSubmission
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM exam_progress WHERE user_id=$1 AND exam_id=$2`,
		sub.UserID, sub.ExamID)
	if err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *SubmissionRepository) GetSubmission(ctx context.Context, userID, examID string) (domain.Submission, bool, error) {
	var sub domain.Submission
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, exam_id, score, submitted_at FROM exam_submissions WHERE user_id=$1 AND exam_id=$2`,
		userID, examID).Scan(&sub.UserID, &sub.ExamID, &sub.Score, &sub.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, false, nil
	}
	if err != nil {
		return domain.Submission{}, false, fmt.Errorf("load submission: %w", err)
	}
	return sub, true, nil
}

func (r *SubmissionRepository) ListExamSubmissions(ctx context.Context, examID string, limit int) ([]domain.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, exam_id, score, submitted_at
		 FROM exam_submissions
		 WHERE exam_id=$1
		 ORDER BY score DESC, submitted_at ASC
		 LIMIT $2`, examID, limit)
	if err != nil {
		return nil, fmt.Errorf("list exam submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (r *SubmissionRepository) ListUserSubmissions(ctx context.Context, userID string) ([]domain.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, exam_id, score, submitted_at
		 FROM exam_submissions
		 WHERE user_id=$1
		 ORDER BY submitted_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func scanSubmissions(rows pgx.Rows) ([]domain.Submission, error) {
	subs := make([]domain.Submission, 0)
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.UserID, &sub.ExamID, &sub.Score, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
