package postgres

import (
	"context"
	"fmt"

	"weekly-exam-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// UserDirectory resolves leaderboard identities from the shared users table.
// Only the fields a leaderboard may expose are selected; never password or
// role columns.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) GetUsers(ctx context.Context, userIDs []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, name, email, specialty FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Specialty); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}
