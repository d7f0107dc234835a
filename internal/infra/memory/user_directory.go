package memory

import (
	"context"
	"sync"

	"weekly-exam-service/internal/domain"
)

// UserDirectory is an in-memory identity lookup (tests/demos). Unknown IDs are
// simply absent from the result; leaderboard rows fall back to blank identity.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserDirectory(users []domain.User) *UserDirectory {
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &UserDirectory{users: byID}
}

func (d *UserDirectory) Put(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *UserDirectory) GetUsers(_ context.Context, userIDs []string) (map[string]domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]domain.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
