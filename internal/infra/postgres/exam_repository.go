package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ExamRepository persists exam definitions and their question references.
type ExamRepository struct {
	pool *pgxpool.Pool
}

func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func (r *ExamRepository) CreateExam(ctx context.Context, exam domain.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create exam: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO weekly_exams (id, title, description, start_date, end_date) VALUES ($1, $2, $3, $4, $5)`,
		exam.ID, exam.Title, exam.Description, exam.StartDate, exam.EndDate)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	if err := insertExamQuestions(ctx, tx, exam.ID, exam.QuestionIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateExam is full-replace: the old question associations are dropped and
// the new set installed exactly as given.
func (r *ExamRepository) UpdateExam(ctx context.Context, exam domain.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update exam: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE weekly_exams SET title=$2, description=$3, start_date=$4, end_date=$5 WHERE id=$1`,
		exam.ID, exam.Title, exam.Description, exam.StartDate, exam.EndDate)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_exam_questions WHERE exam_id=$1`, exam.ID); err != nil {
		return fmt.Errorf("clear exam questions: %w", err)
	}
	if err := insertExamQuestions(ctx, tx, exam.ID, exam.QuestionIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteExam removes the definition; progress, submissions and badges go with
// it through ON DELETE CASCADE.
func (r *ExamRepository) DeleteExam(ctx context.Context, examID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM weekly_exams WHERE id=$1`, examID)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExamNotFound
	}
	return nil
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	var exam domain.Exam
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, start_date, end_date FROM weekly_exams WHERE id=$1`,
		examID).Scan(&exam.ID, &exam.Title, &exam.Description, &exam.StartDate, &exam.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	exam.QuestionIDs, err = r.questionIDs(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	return exam, nil
}

func (r *ExamRepository) ListExams(ctx context.Context) ([]domain.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, start_date, end_date FROM weekly_exams ORDER BY start_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := make([]domain.Exam, 0)
	for rows.Next() {
		var exam domain.Exam
		if err := rows.Scan(&exam.ID, &exam.Title, &exam.Description, &exam.StartDate, &exam.EndDate); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, exam)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range exams {
		if exams[i].QuestionIDs, err = r.questionIDs(ctx, exams[i].ID); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

// FindActive picks the window containing now; overlaps resolve to the nearest
// deadline so the most urgent exam surfaces first.
func (r *ExamRepository) FindActive(ctx context.Context, now time.Time) (domain.Exam, bool, error) {
	var exam domain.Exam
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, start_date, end_date
		 FROM weekly_exams
		 WHERE start_date <= $1 AND end_date >= $1
		 ORDER BY end_date ASC
		 LIMIT 1`, now).
		Scan(&exam.ID, &exam.Title, &exam.Description, &exam.StartDate, &exam.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, false, nil
	}
	if err != nil {
		return domain.Exam{}, false, fmt.Errorf("find active exam: %w", err)
	}
	if exam.QuestionIDs, err = r.questionIDs(ctx, exam.ID); err != nil {
		return domain.Exam{}, false, err
	}
	return exam, true, nil
}

func (r *ExamRepository) questionIDs(ctx context.Context, examID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM weekly_exam_questions WHERE exam_id=$1 ORDER BY position`, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam questions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertExamQuestions(ctx context.Context, tx pgx.Tx, examID string, questionIDs []int64) error {
	for position, questionID := range questionIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO weekly_exam_questions (exam_id, question_id, position) VALUES ($1, $2, $3)`,
			examID, questionID, position)
		if err != nil {
			return fmt.Errorf("attach question %d: %w", questionID, err)
		}
	}
	return nil
}
