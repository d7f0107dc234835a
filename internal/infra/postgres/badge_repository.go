package postgres

import (
	"context"
	"fmt"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BadgeRepository stores podium trophies. The composite primary key plus
// ON CONFLICT DO NOTHING gives award its skip-duplicate semantics, which is
// what makes re-running finalize safe.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

func (r *BadgeRepository) AwardBadge(ctx context.Context, badge domain.Badge) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_badges (user_id, exam_id, badge_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, exam_id, badge_type) DO NOTHING`,
		badge.UserID, badge.ExamID, badge.Type)
	if err != nil {
		return fmt.Errorf("award badge: %w", err)
	}
	return nil
}

func (r *BadgeRepository) ListUserBadges(ctx context.Context, userID string) ([]domain.Badge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, exam_id, badge_type FROM exam_badges WHERE user_id=$1 ORDER BY awarded_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	defer rows.Close()
	return scanBadges(rows)
}

func (r *BadgeRepository) ListExamBadges(ctx context.Context, examID string) ([]domain.Badge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, exam_id, badge_type FROM exam_badges WHERE exam_id=$1 ORDER BY badge_type`,
		examID)
	if err != nil {
		return nil, fmt.Errorf("list exam badges: %w", err)
	}
	defer rows.Close()
	return scanBadges(rows)
}

func scanBadges(rows pgx.Rows) ([]domain.Badge, error) {
	badges := make([]domain.Badge, 0)
	for rows.Next() {
		var badge domain.Badge
		if err := rows.Scan(&badge.UserID, &badge.ExamID, &badge.Type); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, badge)
	}
	return badges, rows.Err()
}
