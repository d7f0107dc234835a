package postgres

import (
	"context"
	"fmt"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader reads questions with their choices from the shared bank. The
// bank is read-only here: nothing in this service mutates question content.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) QuestionsForExam(ctx context.Context, _ string, questionIDs []int64) ([]domain.Question, error) {
	if len(questionIDs) == 0 {
		return []domain.Question{}, nil
	}

	rows, err := l.pool.Query(ctx,
		`SELECT q.id, q.text, q.explanation, c.id, c.text, c.is_correct
		 FROM questions q
		 JOIN choices c ON c.question_id = q.id
		 WHERE q.id = ANY($1)
		 ORDER BY q.id, c.id`, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.Question)
	for rows.Next() {
		var (
			qID, cID     int64
			qText, qExpl string
			cText        string
			isCorrect    bool
		)
		if err := rows.Scan(&qID, &qText, &qExpl, &cID, &cText, &isCorrect); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q, ok := byID[qID]
		if !ok {
			q = &domain.Question{ID: qID, Text: qText, Explanation: qExpl}
			byID[qID] = q
		}
		q.Choices = append(q.Choices, domain.Choice{ID: cID, Text: cText, IsCorrect: isCorrect})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the exam's question order.
	out := make([]domain.Question, 0, len(questionIDs))
	for _, id := range questionIDs {
		if q, ok := byID[id]; ok {
			out = append(out, *q)
		}
	}
	return out, nil
}
